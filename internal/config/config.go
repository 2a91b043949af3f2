// Package config loads bulk-load job files.
//
// A job is a YAML (or JSON) document naming one source stream, the record
// model it decodes into and the storage backend it is loaded into:
//
//	job: nodes
//	source:
//	  path: exports/umbracoNode.jsonl.gz
//	  encoding: utf-8
//	  format: jsonl
//	model: node
//	storage:
//	  kind: mssql
//	  dsn: ${MSSQL_DSN}
//	  table: dbo.umbracoNode
//	runtime:
//	  batch_size: 5000
//	metrics:
//	  backend: prometheus
//	  pushgateway_url: http://pushgateway:9091
//
// Values are layered, lowest to highest: defaults, the job file,
// BULKLOAD_* environment variables, then explicitly set CLI flags.
package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"bulkload/internal/datasource/httpds"
	"bulkload/internal/schema"
	"bulkload/internal/storage"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// key levels: BULKLOAD_STORAGE__DSN sets storage.dsn.
const EnvPrefix = "BULKLOAD_"

// Job is one bulk-load run.
type Job struct {
	Name    string  `koanf:"job"`
	Source  Source  `koanf:"source"`
	Model   string  `koanf:"model"`
	Storage Storage `koanf:"storage"`
	Runtime Runtime `koanf:"runtime"`
	Metrics Metrics `koanf:"metrics"`

	// File is the job file this was loaded from, if any.
	File string `koanf:"-"`
}

// Source identifies the input stream.
type Source struct {
	// Kind is "file" or "http".
	Kind string `koanf:"kind"`

	// Path is a local file; relative paths resolve against the job file's
	// directory. A .gz suffix is decompressed on the fly.
	Path string `koanf:"path"`

	URL string `koanf:"url"`

	// Encoding is an IANA charset name; the stream is transcoded to UTF-8.
	Encoding string `koanf:"encoding"`

	// Format is "jsonl" (also reads a JSON array) or "csv".
	Format string `koanf:"format"`
	CSV    CSV    `koanf:"csv"`

	HTTP HTTP `koanf:"http"`
}

// CSV tunes the "csv" format.
type CSV struct {
	Comma       string            `koanf:"comma"`
	LazyQuotes  bool              `koanf:"lazy_quotes"`
	KeepSpace   bool              `koanf:"keep_space"`
	HeaderMap   map[string]string `koanf:"header_map"`
	SkipUnknown bool              `koanf:"skip_unknown"`
	DateLayout  string            `koanf:"date_layout"`
	Truthy      []string          `koanf:"truthy"`
	Falsy       []string          `koanf:"falsy"`
}

// CSVOptions converts the csv block for schema.DecodeCSV.
func (s Source) CSVOptions() schema.CSVOptions {
	o := schema.CSVOptions{
		LazyQuotes:  s.CSV.LazyQuotes,
		KeepSpace:   s.CSV.KeepSpace,
		HeaderMap:   s.CSV.HeaderMap,
		SkipUnknown: s.CSV.SkipUnknown,
		DateLayout:  s.CSV.DateLayout,
		Truthy:      s.CSV.Truthy,
		Falsy:       s.CSV.Falsy,
	}
	if r := []rune(s.CSV.Comma); len(r) > 0 {
		o.Comma = r[0]
	}
	return o
}

// HTTP tunes the "http" source.
type HTTP struct {
	HeaderTimeout      time.Duration     `koanf:"header_timeout"`
	MaxRetries         int               `koanf:"max_retries"`
	InitialBackoff     time.Duration     `koanf:"initial_backoff"`
	MaxBackoff         time.Duration     `koanf:"max_backoff"`
	InsecureSkipVerify bool              `koanf:"insecure_skip_verify"`
	Headers            map[string]string `koanf:"headers"`
}

// Location returns the path or URL matching Kind.
func (s Source) Location() string {
	if s.Kind == "http" {
		return s.URL
	}
	return s.Path
}

// HTTPConfig converts the http block for httpds.
func (s Source) HTTPConfig() httpds.Config {
	var h http.Header
	if len(s.HTTP.Headers) > 0 {
		h = make(http.Header, len(s.HTTP.Headers))
		for k, v := range s.HTTP.Headers {
			h.Set(k, v)
		}
	}
	return httpds.Config{
		HeaderTimeout:      s.HTTP.HeaderTimeout,
		MaxRetries:         s.HTTP.MaxRetries,
		InitialBackoff:     s.HTTP.InitialBackoff,
		MaxBackoff:         s.HTTP.MaxBackoff,
		InsecureSkipVerify: s.HTTP.InsecureSkipVerify,
		Headers:            h,
	}
}

// Storage selects the destination backend.
type Storage struct {
	Kind  string `koanf:"kind"`
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table"`
}

type Runtime struct {
	// BatchSize is the backend's rows per batch; 0 keeps the backend default.
	BatchSize int `koanf:"batch_size"`
}

// Metrics selects the metrics backend: "none", "prometheus" or "datadog".
type Metrics struct {
	Backend        string  `koanf:"backend"`
	PushgatewayURL string  `koanf:"pushgateway_url"`
	Datadog        Datadog `koanf:"datadog"`
}

type Datadog struct {
	Addr      string   `koanf:"addr"`
	Namespace string   `koanf:"namespace"`
	Tags      []string `koanf:"tags"`
}

// StorageConfig builds the storage.Config for this job.
func (j Job) StorageConfig() storage.Config {
	return storage.Config{
		Kind:      j.Storage.Kind,
		DSN:       j.Storage.DSN,
		Table:     j.Storage.Table,
		BatchSize: j.Runtime.BatchSize,
		Job:       j.Name,
	}
}

func defaults() map[string]any {
	return map[string]any{
		"source.kind":               "file",
		"source.encoding":           "utf-8",
		"source.format":             "jsonl",
		"metrics.backend":           "none",
		"metrics.datadog.addr":      "127.0.0.1:8125",
		"metrics.datadog.namespace": "bulkload.",
	}
}

// flagKeys maps CLI flag names onto job keys.
var flagKeys = map[string]string{
	"job":         "job",
	"model":       "model",
	"source":      "source.path",
	"source-kind": "source.kind",
	"url":         "source.url",
	"encoding":    "source.encoding",
	"format":      "source.format",
	"storage":     "storage.kind",
	"dsn":         "storage.dsn",
	"table":       "storage.table",
	"batch-size":  "runtime.batch_size",
	"metrics":     "metrics.backend",
	"pushgateway": "metrics.pushgateway_url",
}

// Load reads the job at path (empty for flags and environment only) and
// applies overrides. Only flags in flagKeys that were explicitly set take
// part; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Job, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Job{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		// The YAML parser accepts JSON documents too.
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Job{}, fmt.Errorf("read job file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Job{}, fmt.Errorf("load env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Job{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var j Job
	if err := k.Unmarshal("", &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	j.File = path

	j.Storage.DSN = expandEnvVars(j.Storage.DSN)
	j.Source.URL = expandEnvVars(j.Source.URL)
	for h, v := range j.Source.HTTP.Headers {
		j.Source.HTTP.Headers[h] = expandEnvVars(v)
	}

	if path != "" && (flags == nil || !flags.Changed("source")) {
		if abs, err := filepath.Abs(path); err == nil {
			j.Source.Path = resolvePathRelativeTo(j.Source.Path, filepath.Dir(abs))
		}
	}
	if j.Name == "" && path != "" {
		j.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return j, nil
}

// envKey turns BULKLOAD_STORAGE__DSN into storage.dsn.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with its value; unset variables are left as is.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}
