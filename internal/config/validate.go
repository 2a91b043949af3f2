package config

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"bulkload/internal/datasource"
	"bulkload/internal/schema"
	"bulkload/internal/storage"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single finding. Path is the dotted key, e.g. "storage.dsn".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}

// ValidateJob lints j without mutating it. Storage kinds are checked against
// the backends registered with the storage package, so callers that want
// those checks must link the backends in.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels metrics and logs",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateModel(j.Model)...)
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateMetrics(j.Metrics)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.url",
				Message:  fmt.Sprintf("http source requires an http(s) URL, got %q", s.URL),
			})
		}
		if s.HTTP.MaxRetries < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.max_retries",
				Message:  "max_retries must not be negative",
			})
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.http.insecure_skip_verify",
				Message:  "TLS certificate verification is disabled",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; want file or http", s.Kind),
		})
	}

	switch s.Format {
	case "", "jsonl":
	case "csv":
		if n := utf8.RuneCountInString(s.CSV.Comma); n > 1 || s.CSV.Comma == "\n" || s.CSV.Comma == "\r" || s.CSV.Comma == `"` {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.csv.comma",
				Message:  fmt.Sprintf("comma must be a single character other than quote or newline, got %q", s.CSV.Comma),
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.format",
			Message:  fmt.Sprintf("unknown source format %q; want jsonl or csv", s.Format),
		})
	}

	if _, err := datasource.LookupEncoding(s.Encoding); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.encoding",
			Message:  err.Error(),
		})
	}
	return issues
}

func validateModel(name string) []Issue {
	if strings.TrimSpace(name) == "" {
		return []Issue{{
			Severity: SeverityError,
			Path:     "model",
			Message:  "model must not be empty",
		}}
	}
	if _, ok := schema.Lookup(name); !ok {
		return []Issue{{
			Severity: SeverityError,
			Path:     "model",
			Message:  fmt.Sprintf("unknown model %q; known: %s", name, strings.Join(schema.Names(), ", ")),
		}}
	}
	return nil
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	} else if kinds := storage.ListKinds(); !slices.Contains(kinds, s.Kind) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("no storage backend registered for %q; known: %s", s.Kind, strings.Join(kinds, ", ")),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	} else if strings.Contains(s.DSN, "${") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.dsn",
			Message:  "storage.dsn references an unset environment variable",
		})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.table",
			Message:  "storage.table is empty; the model's own table name is used",
		})
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	if r.BatchSize < 0 {
		return []Issue{{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d must not be negative", r.BatchSize),
		}}
	}
	return nil
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
		return nil
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires pushgateway_url",
			}}
		}
	case "datadog":
		if strings.TrimSpace(m.Datadog.Addr) == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     "metrics.datadog.addr",
				Message:  "datadog backend requires addr",
			}}
		}
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; want none, prometheus or datadog", m.Backend),
		}}
	}
	return nil
}
