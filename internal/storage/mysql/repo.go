// Package mysql loads bulk cursors into MySQL with LOAD DATA LOCAL INFILE.
// The cursor is encoded as tab-separated text and streamed to the server
// through a registered reader handler, so rows are never materialized.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/errgroup"

	"bulkload/internal/bulk"
	"bulkload/internal/metrics"
	"bulkload/internal/storage"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN uses the go-sql-driver format, e.g.
	// "user:pass@tcp(localhost:3306)/cms?allowAllFiles=false".
	// allowAllFiles is not needed; Reader:: handlers are always permitted.
	DSN   string
	Table string
	Job   string
}

// Repository loads cursors into one MySQL database.
type Repository struct {
	db  *sql.DB
	cfg Config
}

var readerSeq atomic.Uint64

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql ping failed: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

// Load streams c into table with one LOAD DATA statement inside a
// transaction and returns the number of rows read from the cursor.
func (r *Repository) Load(ctx context.Context, table string, c *bulk.Cursor) (int64, error) {
	cols, err := storage.Columns(c)
	if err != nil {
		return 0, fmt.Errorf("bulk schema: %w", err)
	}
	table = storage.Destination(table, r.cfg.Table, c, joinFQN)
	log := slog.With("component", "mysql", "job", r.cfg.Job, "table", table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	name := fmt.Sprintf("bulkload-%d", readerSeq.Add(1))
	var g errgroup.Group
	mysql.RegisterReaderHandler(name, func() io.Reader {
		pr, pw := io.Pipe()
		g.Go(func() error {
			err := writeTSV(ctx, pw, c)
			_ = pw.CloseWithError(err)
			return err
		})
		return pr
	})
	defer mysql.DeregisterReaderHandler(name)

	start := time.Now()
	res, execErr := tx.ExecContext(ctx, loadSQL(name, table, cols))
	// The driver closes the pipe reader when it stops reading, so the writer
	// has always returned by now. A closed pipe only means the driver gave up
	// first and execErr says why.
	werr := g.Wait()
	switch {
	case werr != nil && !(execErr != nil && errors.Is(werr, io.ErrClosedPipe)):
		return 0, werr
	case execErr != nil:
		return 0, fmt.Errorf("load data: %w", execErr)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	n := c.RowsRead()
	affected, _ := res.RowsAffected()
	if affected != n {
		log.Warn("server row count differs from rows sent", "sent", n, "affected", affected)
	}
	metrics.RecordBatches(r.cfg.Job, 1)
	log.Info("load complete", "rows", n, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return n, nil
}

func loadSQL(reader, table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = myIdent(c)
	}
	return fmt.Sprintf(
		`LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s CHARACTER SET utf8mb4 `+
			`FIELDS TERMINATED BY '\t' ESCAPED BY '\\' LINES TERMINATED BY '\n' (%s)`,
		reader, myFQN(table), strings.Join(quoted, ", "),
	)
}

// joinFQN drops the SQL Server default schema; in MySQL a qualifier names a
// database.
func joinFQN(schema, table string) string {
	if schema == "" || strings.EqualFold(schema, "dbo") {
		return table
	}
	return schema + "." + table
}

// myIdent quotes an identifier with backticks, doubling embedded ones.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = myIdent(p)
	}
	return strings.Join(parts, ".")
}
