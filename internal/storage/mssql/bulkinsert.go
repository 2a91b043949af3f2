package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"

	"bulkload/internal/bulk"
	"bulkload/internal/wiretype"
)

// ErrUnsupportedCopyType is returned for columns whose wire type the driver's
// bulk copy encoder cannot send.
var ErrUnsupportedCopyType = errors.New("wire type not supported by bulk copy")

// copyUnsupported lists the wire types go-mssqldb's bulk copy has no encoder
// for. Rejecting them up front keeps a bad column from failing on row 0.
var copyUnsupported = map[wiretype.Type]bool{
	wiretype.Image:      true,
	wiretype.Money:      true,
	wiretype.SmallMoney: true,
	wiretype.Udt:        true,
	wiretype.Variant:    true,
	wiretype.Xml:        true,
}

// DefaultBatchSize is the rows-per-batch hint used when Options.BatchSize is
// not positive.
const DefaultBatchSize = 4096

// Tx is the part of *sql.Tx (or *sql.Conn) BulkInsert needs. The caller owns
// it: BulkInsert never commits or rolls back.
type Tx interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Options tunes a bulk copy.
type Options struct {
	BatchSize int
	// Tablock takes a bulk update table lock for the duration of the copy.
	Tablock bool
	// KeepNulls keeps nulls instead of applying column defaults.
	KeepNulls bool
	// Job labels progress log lines.
	Job string
}

// BulkInsert streams every row of c into table through the bulk copy
// protocol on tx and returns the number of rows read from c.
//
// The column set comes from the cursor's column mappings; destination columns
// are named explicitly, so a destination table with extra or reordered
// columns still lines up. An empty cursor returns 0 without touching tx. No
// deadline is added to ctx. Errors from the transport or the cursor are
// returned as is (wrapped); rolling back is left to the owner of tx.
func BulkInsert(ctx context.Context, tx Tx, table string, c *bulk.Cursor, opts Options) (int64, error) {
	if tx == nil {
		return 0, errors.New("mssql: nil transaction")
	}
	if c == nil {
		return 0, errors.New("mssql: nil cursor")
	}
	maps, err := c.ColumnMappings()
	if err != nil {
		return 0, fmt.Errorf("bulk schema: %w", err)
	}
	if err := checkCopyTypes(c); err != nil {
		return 0, err
	}
	if table == "" {
		table = msTable(c.Schema())
	}

	if !c.Advance() {
		if err := c.Err(); err != nil {
			return 0, fmt.Errorf("read row 0: %w", err)
		}
		return 0, nil
	}

	names := make([]string, len(maps))
	for i, m := range maps {
		names[i] = m.Destination
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	log := slog.With("component", "mssql", "job", opts.Job, "table", table)
	start := time.Now()

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{
		RowsPerBatch: batch,
		Tablock:      opts.Tablock,
		KeepNulls:    opts.KeepNulls,
	}, names...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}

	row := make([]any, len(names))
	for {
		if _, err := c.Values(row); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", c.RowsRead()-1, err)
		}
		for i := range row {
			row[i] = toCopyVal(row[i])
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", c.RowsRead()-1, err)
		}
		if n := c.RowsRead(); n%int64(batch) == 0 {
			log.Debug("rows streamed", "rows", n, "elapsed", time.Since(start).Truncate(time.Millisecond))
		}
		if !c.Advance() {
			break
		}
	}
	if err := c.Err(); err != nil {
		_ = stmt.Close()
		return 0, fmt.Errorf("read row %d: %w", c.RowsRead(), err)
	}

	_, err = stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}

	n := c.RowsRead()
	log.Info("bulk copy done", "rows", n, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return n, nil
}

// BulkInsertRecords wraps recs in a record cursor and bulk copies it. The
// cursor is closed before returning.
func BulkInsertRecords[T any](ctx context.Context, tx Tx, table string, recs iter.Seq2[T, error], opts Options, ropts ...bulk.RecordOption) (int64, error) {
	c, err := bulk.NewRecordCursor(recs, ropts...)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	return BulkInsert(ctx, tx, table, c, opts)
}

func checkCopyTypes(c *bulk.Cursor) error {
	cols, err := c.Columns()
	if err != nil {
		return fmt.Errorf("bulk schema: %w", err)
	}
	for _, col := range cols {
		if copyUnsupported[col.Type] {
			return fmt.Errorf("bulk schema: column %q (%s): %w", col.Name, col.TypeName, ErrUnsupportedCopyType)
		}
	}
	return nil
}

// toCopyVal converts cursor values to what the bulk copy encoder accepts:
// narrow integers widen to int64, GUIDs travel in SQL Server byte order and
// civil dates and times as time.Time. Everything else passes through; nil
// stays nil.
func toCopyVal(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case uint8:
		return int64(x)
	case uuid.UUID:
		b, _ := mssql.UniqueIdentifier(x).Value()
		return b
	case civil.Date:
		return x.In(time.UTC)
	case civil.DateTime:
		return x.In(time.UTC)
	case civil.Time:
		return time.Date(1, 1, 1, x.Hour, x.Minute, x.Second, x.Nanosecond, time.UTC)
	}
	return v
}
