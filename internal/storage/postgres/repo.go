// Package postgres loads bulk cursors into Postgres with COPY FROM using
// pgx v5. Rows stream straight from the cursor into the COPY protocol; the
// whole load runs in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"bulkload/internal/bulk"
	"bulkload/internal/metrics"
	"bulkload/internal/storage"
	"bulkload/internal/wiretype"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // default target, e.g. "public.umbraco_node"
	Job   string
}

// beginner is the part of *pgxpool.Pool that Load needs.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool beginner
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

// Load copies c into table inside one transaction.
func (r *Repository) Load(ctx context.Context, table string, c *bulk.Cursor) (int64, error) {
	cols, err := c.Columns()
	if err != nil {
		return 0, fmt.Errorf("bulk schema: %w", err)
	}
	names := make([]string, len(cols))
	conv := make([]func(any) any, len(cols))
	for i, col := range cols {
		names[i] = col.Name
		conv[i] = converter(col.Type)
	}
	table = storage.Destination(table, r.cfg.Table, c, joinFQN)
	log := slog.With("component", "postgres", "job", r.cfg.Job, "table", table)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start := time.Now()
	src := &cursorSource{c: c, conv: conv, row: make([]any, len(cols))}
	n, err := tx.CopyFrom(ctx, splitFQN(table), names, src)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("copy from: %s (%s): %w", pgErr.Detail, pgErr.SQLState(), err)
		}
		return 0, fmt.Errorf("copy from: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	metrics.RecordBatches(r.cfg.Job, 1)
	log.Info("copy complete", "rows", n, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return n, nil
}

// cursorSource adapts a bulk cursor to pgx.CopyFromSource. The row slice is
// reused; pgx encodes each row before asking for the next.
type cursorSource struct {
	c    *bulk.Cursor
	conv []func(any) any
	row  []any
}

func (s *cursorSource) Next() bool { return s.c.Advance() }

func (s *cursorSource) Values() ([]any, error) {
	if _, err := s.c.Values(s.row); err != nil {
		return nil, err
	}
	for i, v := range s.row {
		if v != nil && s.conv[i] != nil {
			s.row[i] = s.conv[i](v)
		}
	}
	return s.row, nil
}

func (s *cursorSource) Err() error {
	if err := s.c.Err(); err != nil {
		return fmt.Errorf("read row %d: %w", s.c.RowsRead(), err)
	}
	return nil
}

// converter returns the value conversion applied before pgx encodes a column
// of type t, or nil when values pass through unchanged.
func converter(t wiretype.Type) func(any) any {
	switch t {
	case wiretype.Decimal:
		return toNumeric
	default:
		return toPgVal
	}
}

// toNumeric parses decimal text into pgtype.Numeric; other values fall
// through to toPgVal.
func toNumeric(v any) any {
	s, ok := v.(string)
	if !ok {
		return toPgVal(v)
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		// pgx reports the bad text when it fails to encode it.
		return s
	}
	return n
}

// toPgVal maps civil and uuid values onto pgtype values pgx encodes
// natively. Everything else is returned as-is.
func toPgVal(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return pgtype.UUID{Bytes: x, Valid: true}
	case civil.Date:
		return pgtype.Date{Time: x.In(time.UTC), Valid: true}
	case civil.DateTime:
		return pgtype.Timestamp{Time: x.In(time.UTC), Valid: true}
	case civil.Time:
		us := int64(x.Hour)*3600e6 + int64(x.Minute)*60e6 + int64(x.Second)*1e6 + int64(x.Nanosecond)/1e3
		return pgtype.Time{Microseconds: us, Valid: true}
	default:
		return v
	}
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

// joinFQN builds the default destination from the cursor's schema and table.
// The SQL Server default schema "dbo" maps to Postgres "public".
func joinFQN(schema, table string) string {
	if schema == "" || strings.EqualFold(schema, "dbo") {
		schema = "public"
	}
	return schema + "." + table
}
