package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bulkload/internal/bulk"
	"bulkload/internal/metrics"
)

// CopyFn inserts one batch of rows, aligned to columns, and returns the number
// of rows inserted. rows and the slices in it are reused by the caller after
// CopyFn returns and must not be retained.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// Batching configures LoadBatches.
type Batching struct {
	Size int
	Job  string
}

// LoadBatches drains c, groups rows into batches of b.Size, and calls copyFn
// for each non-empty batch. It returns the total reported by copyFn and the
// first error encountered. A cursor read error ends the load with that error;
// rows already handed to copyFn stay counted.
//
// Cancellation is checked between rows. Progress is logged on each flush.
func LoadBatches(ctx context.Context, c *bulk.Cursor, b Batching, copyFn CopyFn) (int64, error) {
	if b.Size <= 0 {
		return 0, fmt.Errorf("batch size must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	columns, err := Columns(c)
	if err != nil {
		return 0, err
	}

	log := slog.With("component", "loader", "job", b.Job)

	var (
		total       int64
		batches     int64
		buf         = make([][]any, b.Size)
		batch       = make([][]any, 0, b.Size)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)
	for i := range buf {
		buf[i] = make([]any, len(columns))
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			log.Error("copy failed", "after", n, "total", total, "err", err)
			return err
		}

		batches++
		metrics.RecordBatches(b.Job, 1)
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Info("batch flushed",
			"batch", batches,
			"rps", int64(rps),
			"rows", n,
			"total", total,
			"elapsed", now.Sub(start).Truncate(time.Millisecond),
			"since_last", sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for c.Advance() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		row := buf[len(batch)]
		if _, err := c.Values(row); err != nil {
			return total, err
		}
		batch = append(batch, row)
		if len(batch) >= b.Size {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := c.Err(); err != nil {
		return total, fmt.Errorf("read row %d: %w", c.RowsRead(), err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	log.Debug("cursor exhausted", "batches", batches, "total", total)
	return total, nil
}
