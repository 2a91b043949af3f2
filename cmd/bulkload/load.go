package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bulkload/internal/bulk"
	"bulkload/internal/config"
	"bulkload/internal/datasource"
	"bulkload/internal/metrics"
	"bulkload/internal/metrics/datadog"
	"bulkload/internal/metrics/prompush"
	"bulkload/internal/schema"
	"bulkload/internal/storage"
)

// Test seams.
var (
	newRepositoryFn = storage.New

	openSourceFn = func(j config.Job) (datasource.Source, error) {
		return datasource.New(j.Source.Kind, j.Source.Location(), j.Source.HTTPConfig())
	}
)

func newLoadCmd() *cobra.Command {
	var (
		list     string
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "load [job-file...]",
		Short: "Bulk load one or more jobs",
		Long: `Load runs each job: it opens the source stream, decodes it into the
job's record model and bulk loads the rows into the destination inside one
transaction. Jobs run concurrently on independent connections, up to
--parallel at a time. Flags override values from every job file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
			}
			paths, err := jobPaths(args, list)
			if err != nil {
				return err
			}
			jobs, err := loadJobs(cmd.ErrOrStderr(), paths, cmd.Flags())
			if err != nil {
				return err
			}

			flush, err := setupMetrics(jobs)
			if err != nil {
				return err
			}
			defer flush()

			return runJobs(cmd.Context(), jobs, parallel)
		},
	}

	cmd.Flags().StringVar(&list, "list", "", "file listing job files, one per line")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "jobs to run concurrently")
	addJobFlags(cmd.Flags())
	return cmd
}

// runJobs runs jobs with at most parallel in flight. A failed job does not
// stop the others; the first error is returned once all have finished.
func runJobs(ctx context.Context, jobs []config.Job, parallel int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(parallel)
	rows := make([]int64, len(jobs))
	for i, j := range jobs {
		g.Go(func() error {
			n, err := runJob(ctx, j)
			rows[i] = n
			if err != nil {
				slog.Error("job failed", "job", j.Name, "err", err)
				return fmt.Errorf("job %s: %w", j.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()

	var total int64
	for _, n := range rows {
		total += n
	}
	slog.Info("run complete", "jobs", len(jobs), "rows", total,
		"elapsed", time.Since(start).Truncate(time.Millisecond))
	return err
}

// runJob loads a single job and returns the number of rows committed.
func runJob(ctx context.Context, j config.Job) (int64, error) {
	log := slog.With("job", j.Name)

	model, ok := schema.Lookup(j.Model)
	if !ok {
		return 0, fmt.Errorf("unknown model %q", j.Model)
	}

	t0 := time.Now()
	repo, err := newRepositoryFn(ctx, j.StorageConfig())
	metrics.RecordStep(j.Name, "connect", err, time.Since(t0))
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", j.Storage.Kind, err)
	}
	defer repo.Close()

	src, err := openSourceFn(j)
	if err != nil {
		return 0, err
	}
	t0 = time.Now()
	raw, err := src.Open(ctx)
	metrics.RecordStep(j.Name, "open", err, time.Since(t0))
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	rc, err := datasource.Decode(raw, j.Source.Encoding)
	if err != nil {
		_ = raw.Close()
		return 0, err
	}
	defer rc.Close()

	var c *bulk.Cursor
	if j.Source.Format == "csv" {
		c, err = model.OpenCSV(rc, j.Source.CSVOptions())
	} else {
		c, err = model.Open(rc)
	}
	if err != nil {
		return 0, fmt.Errorf("model %s: %w", model.Name, err)
	}
	defer c.Close()

	log.Info("load started", "model", model.Name, "format", j.Source.Format, "storage", j.Storage.Kind, "source", j.Source.Location())
	t0 = time.Now()
	n, err := repo.Load(ctx, j.Storage.Table, c)
	elapsed := time.Since(t0)
	metrics.RecordStep(j.Name, "load", err, elapsed)
	metrics.RecordRow(j.Name, "read", c.RowsRead())
	if err != nil {
		return 0, err
	}
	metrics.RecordRow(j.Name, "loaded", n)

	rps := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rps = float64(n) / s
	}
	log.Info("load complete", "rows", n, "elapsed", elapsed.Truncate(time.Millisecond), "rps", int64(rps))
	return n, nil
}

// setupMetrics installs the backend named by the first job. The metrics
// backend is process-wide, so later jobs only warn when they disagree.
func setupMetrics(jobs []config.Job) (flush func(), err error) {
	noop := func() {}
	if len(jobs) == 0 {
		return noop, nil
	}
	m := jobs[0].Metrics
	for _, j := range jobs[1:] {
		if j.Metrics.Backend != m.Backend {
			slog.Warn("metrics backend differs between jobs; using the first", "job", j.Name, "backend", j.Metrics.Backend, "using", m.Backend)
		}
	}

	var b metrics.Backend
	switch m.Backend {
	case "", "none":
		slog.Debug("metrics disabled")
		return noop, nil
	case "prometheus":
		group := "bulkload"
		if len(jobs) == 1 {
			group = jobs[0].Name
		}
		b, err = prompush.NewBackend(group, m.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{Addr: m.Datadog.Addr, Namespace: m.Datadog.Namespace, GlobalTags: m.Datadog.Tags})
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", m.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	metrics.SetBackend(b)
	slog.Debug("metrics enabled", "backend", m.Backend)
	return func() {
		if err := metrics.Flush(); err != nil {
			slog.Warn("metrics flush failed", "err", err)
		}
	}, nil
}
