// Package mssql loads bulk cursors into Microsoft SQL Server through the
// go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/microsoft/go-mssqldb/msdsn"

	"bulkload/internal/bulk"
	"bulkload/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN       string
	Table     string
	BatchSize int
	Job       string
}

// Repository loads cursors into one SQL Server database.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// Load bulk copies c into table inside one transaction.
func (r *Repository) Load(ctx context.Context, table string, c *bulk.Cursor) (int64, error) {
	table = storage.Destination(table, r.cfg.Table, c, msTable)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	n, err := BulkInsert(ctx, tx, table, c, Options{BatchSize: r.cfg.BatchSize, Job: r.cfg.Job})
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.umbracoNode" to
// "[dbo].[umbracoNode]".
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}

// msTable quotes a schema and table pair; an empty schema yields a single
// quoted identifier.
func msTable(schema, table string) string {
	if schema == "" {
		return msIdent(table)
	}
	return msFQN(schema) + "." + msIdent(table)
}
