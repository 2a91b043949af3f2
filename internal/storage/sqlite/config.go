// Package sqlite implements a SQLite-backed storage.Repository.
package sqlite

// DefaultBatchSize is the number of rows inserted between progress flushes
// when Config.BatchSize is not set.
const DefaultBatchSize = 1000

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:bulkload.db?_pragma=foreign_keys(1)"
	//   ":memory:"
	DSN string

	// Table is the default destination, e.g. "umbracoNode". Schema-qualified
	// names such as "main.umbracoNode" are passed through.
	Table string

	BatchSize int
	Job       string
}
