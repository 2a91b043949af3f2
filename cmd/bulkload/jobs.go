package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"bulkload/internal/config"
	"bulkload/internal/datasource/file"
)

// addJobFlags registers the per-run overrides understood by config.Load.
func addJobFlags(fs *pflag.FlagSet) {
	fs.String("job", "", "job name (default: job file base name)")
	fs.String("model", "", "record model to decode (see 'bulkload models')")
	fs.String("source", "", "source file path (.gz is decompressed)")
	fs.String("source-kind", "", "source kind (file|http)")
	fs.String("url", "", "source URL for the http source kind")
	fs.String("encoding", "", "source charset, an IANA name (default utf-8)")
	fs.String("format", "", "source format (jsonl|csv)")
	fs.String("storage", "", "storage backend (mssql|postgres|mysql|sqlite)")
	fs.String("dsn", "", "storage connection string")
	fs.String("table", "", "destination table (default: the model's table)")
	fs.Int("batch-size", 0, "rows per backend batch (0 keeps the backend default)")
	fs.String("metrics", "", "metrics backend (none|prometheus|datadog)")
	fs.String("pushgateway", "", "Prometheus Pushgateway URL")
}

// jobPaths merges positional job files with the entries of an optional list
// file. An empty result means a single job configured by flags and env.
func jobPaths(args []string, list string) ([]string, error) {
	paths := append([]string(nil), args...)
	if list != "" {
		more, err := file.ReadList(list)
		if err != nil {
			return nil, fmt.Errorf("read job list %s: %w", list, err)
		}
		paths = append(paths, more...)
	}
	if len(paths) == 0 {
		paths = []string{""}
	}
	return paths, nil
}

// loadJobs loads and validates every job, writing issues to w. It fails if
// any job does not load or has an error-severity issue.
func loadJobs(w io.Writer, paths []string, flags *pflag.FlagSet) ([]config.Job, error) {
	jobs := make([]config.Job, 0, len(paths))
	invalid := 0
	for _, p := range paths {
		j, err := config.Load(p, flags)
		if err != nil {
			return nil, err
		}
		issues := config.ValidateJob(j)
		for _, iss := range issues {
			fmt.Fprintf(w, "%s: %s: %s: %s\n", label(j), iss.Severity, iss.Path, iss.Message)
		}
		if config.HasErrors(issues) {
			invalid++
		}
		jobs = append(jobs, j)
	}
	if invalid > 0 {
		return jobs, fmt.Errorf("%d of %d job(s) invalid", invalid, len(jobs))
	}
	return jobs, nil
}

func label(j config.Job) string {
	if j.File != "" {
		return j.File
	}
	if j.Name != "" {
		return j.Name
	}
	return "<flags>"
}
