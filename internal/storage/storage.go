// Package storage holds the backend-agnostic load contract and the factory
// registry that concrete backends plug into.
//
// Backends (mssql, postgres, sqlite, mysql) register a Factory from an init
// function; callers import bulkload/internal/storage/all for side effects and
// open a Repository by kind:
//
//	repo, err := storage.New(ctx, storage.Config{Kind: "mssql", DSN: dsn})
//	if err != nil { ... }
//	defer repo.Close()
//	n, err := repo.Load(ctx, "dbo.umbracoNode", cursor)
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bulkload/internal/bulk"
)

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
	// Table is the default destination when Load is called with an empty
	// table name.
	Table string
	// BatchSize is the rows-per-batch hint handed to the transport.
	BatchSize int
	// Job labels log lines and metrics.
	Job string
}

// Repository loads cursors into one database.
type Repository interface {
	// Load transfers every remaining row of c into table inside a single
	// transaction and returns the number of rows transferred. The transaction
	// is committed on success and rolled back on any error. An empty table
	// name falls back to Config.Table, then to the cursor's own
	// schema-qualified table.
	Load(ctx context.Context, table string, c *bulk.Cursor) (int64, error)
	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository of cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Destination resolves the table name used by Load: table, then fallback,
// then the cursor's schema-qualified table joined with join.
func Destination(table, fallback string, c *bulk.Cursor, join func(schema, table string) string) string {
	if table != "" {
		return table
	}
	if fallback != "" {
		return fallback
	}
	return join(c.Schema())
}

// Columns returns the destination column names of c in ordinal order.
func Columns(c *bulk.Cursor) ([]string, error) {
	maps, err := c.ColumnMappings()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(maps))
	for i, m := range maps {
		names[i] = m.Destination
	}
	return names, nil
}
