// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. SQLite has no bulk-load protocol, so Load streams the cursor
// through a prepared INSERT inside one transaction, flushing progress in
// batches.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bulkload/internal/bulk"
	"bulkload/internal/storage"
)

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; this also keeps ":memory:" databases on a single
	// connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// Load inserts every remaining row of c into table inside one transaction.
func (r *Repository) Load(ctx context.Context, table string, c *bulk.Cursor) (int64, error) {
	cols, err := storage.Columns(c)
	if err != nil {
		return 0, fmt.Errorf("bulk schema: %w", err)
	}
	table = storage.Destination(table, r.cfg.Table, c, joinFQN)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL(table, cols))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	size := r.cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	n, err := storage.LoadBatches(ctx, c, storage.Batching{Size: size, Job: r.cfg.Job},
		func(ctx context.Context, _ []string, rows [][]any) (int64, error) {
			var inserted int64
			for _, row := range rows {
				for i, v := range row {
					row[i] = toSQLiteVal(v)
				}
				if _, err := stmt.ExecContext(ctx, row...); err != nil {
					return inserted, fmt.Errorf("sqlite: insert: %w", err)
				}
				inserted++
			}
			return inserted, nil
		})
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// Exec executes an arbitrary SQL statement (typically DDL) using the underlying
// database/sql connection.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

func insertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sqlIdent(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlFQN(table),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
}

// toSQLiteVal stores uuid and civil values as their canonical text.
func toSQLiteVal(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case civil.Date:
		return x.String()
	case civil.Time:
		return x.String()
	case civil.DateTime:
		return x.String()
	default:
		return v
	}
}

// joinFQN drops the SQL Server default schema; SQLite only knows attached
// database names.
func joinFQN(schema, table string) string {
	if schema == "" || strings.EqualFold(schema, "dbo") {
		return table
	}
	return schema + "." + table
}

// sqlIdent double-quotes an identifier, escaping embedded quotes.
func sqlIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func sqlFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = sqlIdent(p)
	}
	return strings.Join(parts, ".")
}
