package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/bulk"
	"bulkload/internal/config"
	"bulkload/internal/datasource"
	"bulkload/internal/storage"
)

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const languagesJSONL = `{"id":1,"languageISOCode":"en-US","languageCultureName":"English (United States)","isDefaultVariantLang":true,"mandatory":true}
{"id":2,"languageISOCode":"da-DK","languageCultureName":"Dansk","isDefaultVariantLang":false,"mandatory":false,"fallbackLanguageId":1}
{"id":3,"languageISOCode":"cs-CZ","isDefaultVariantLang":false,"mandatory":false}
`

func TestModelsCommand(t *testing.T) {
	out, _, err := execute(t, "models")
	require.NoError(t, err)
	for _, want := range []string{"node", "dbo.umbracoNode", "language", "dbo.umbracoLanguage", "key_value", "property_data"} {
		assert.Contains(t, out, want)
	}
}

func TestDescribeCommand(t *testing.T) {
	out, _, err := execute(t, "describe", "node")
	require.NoError(t, err)
	assert.Contains(t, out, "dbo.umbracoNode")
	assert.Contains(t, out, "uniqueidentifier")
	assert.Contains(t, out, "nvarchar(150)")

	out, _, err = execute(t, "describe", "--markdown", "property_data")
	require.NoError(t, err)
	assert.Contains(t, out, "| decimal(38,6) |")

	_, _, err = execute(t, "describe", "member")
	assert.ErrorContains(t, err, `unknown model "member"`)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "model: language\nsource: {path: langs.jsonl}\nstorage: {kind: sqlite, dsn: 'file:x.db', table: umbracoLanguage}\n")
	bad := writeFile(t, dir, "bad.yaml", "model: language\nsource: {path: langs.jsonl}\nstorage: {kind: sqlite}\n")

	out, _, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Equal(t, "ok "+good+"\n", out)

	_, errOut, err := execute(t, "validate", good, bad)
	assert.EqualError(t, err, "1 of 2 job(s) invalid")
	assert.Contains(t, errOut, bad+": error: storage.dsn: storage.dsn must not be empty")
}

// TestLoadIntoSQLite runs a job file end to end against a real SQLite file.
func TestLoadIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "umbraco.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE umbracoLanguage (
		id INTEGER PRIMARY KEY,
		languageISOCode TEXT,
		languageCultureName TEXT,
		isDefaultVariantLang INTEGER NOT NULL,
		mandatory INTEGER NOT NULL,
		fallbackLanguageId INTEGER
	)`)
	require.NoError(t, err)

	writeFile(t, dir, "languages.jsonl", languagesJSONL)
	job := writeFile(t, dir, "languages.yaml", `
job: languages
model: language
source:
  path: languages.jsonl
storage:
  kind: sqlite
  dsn: `+dbPath+`
  table: umbracoLanguage
runtime:
  batch_size: 2
`)

	_, errOut, err := execute(t, "load", "--log-format", "json", job)
	require.NoError(t, err, errOut)
	assert.Contains(t, errOut, `"msg":"load complete"`)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM umbracoLanguage`).Scan(&n))
	assert.Equal(t, 3, n)

	var culture sql.NullString
	var fallback sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT languageCultureName, fallbackLanguageId FROM umbracoLanguage WHERE id = 3`).Scan(&culture, &fallback))
	assert.False(t, culture.Valid)
	assert.False(t, fallback.Valid)
}

type fakeRepo struct {
	mu     *sync.Mutex
	loaded map[string]int64
	job    string
	fail   error
}

func (r *fakeRepo) Load(_ context.Context, _ string, c *bulk.Cursor) (int64, error) {
	for c.Advance() {
	}
	if err := c.Err(); err != nil {
		return 0, err
	}
	if r.fail != nil {
		return 0, r.fail
	}
	r.mu.Lock()
	r.loaded[r.job] = c.RowsRead()
	r.mu.Unlock()
	return c.RowsRead(), nil
}

func (r *fakeRepo) Close() {}

type stringSource string

func (s stringSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

// swapSeams replaces the storage and source constructors for one test.
func swapSeams(t *testing.T, repo func(storage.Config) (storage.Repository, error), src func(config.Job) (datasource.Source, error)) {
	t.Helper()
	origRepo, origSrc := newRepositoryFn, openSourceFn
	t.Cleanup(func() { newRepositoryFn, openSourceFn = origRepo, origSrc })
	newRepositoryFn = func(_ context.Context, cfg storage.Config) (storage.Repository, error) { return repo(cfg) }
	openSourceFn = src
}

// TestLoadJobList verifies jobs from positional args and --list all run,
// flags override every job and one failing job does not stop the others.
func TestLoadJobList(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "model: language\nsource: {path: a.jsonl}\nstorage: {kind: sqlite, dsn: 'file:a.db'}\n")
	writeFile(t, dir, "b.yaml", "model: language\nsource: {path: b.jsonl}\nstorage: {kind: sqlite, dsn: 'file:b.db'}\n")
	writeFile(t, dir, "c.yaml", "model: language\nsource: {path: c.jsonl}\nstorage: {kind: sqlite, dsn: 'file:c.db'}\n")
	list := writeFile(t, dir, "jobs.txt", "# nightly\nb.yaml\n\nc.yaml\n")

	var (
		mu      sync.Mutex
		loaded  = map[string]int64{}
		configs []storage.Config
	)
	swapSeams(t,
		func(cfg storage.Config) (storage.Repository, error) {
			mu.Lock()
			configs = append(configs, cfg)
			mu.Unlock()
			r := &fakeRepo{mu: &mu, loaded: loaded, job: cfg.Job}
			if cfg.Job == "c" {
				r.fail = errors.New("deadlock victim")
			}
			return r, nil
		},
		func(config.Job) (datasource.Source, error) { return stringSource(languagesJSONL), nil },
	)

	_, _, err := execute(t, "load", "--parallel", "2", "--list", list, "--batch-size", "7", a)
	require.Error(t, err)
	assert.ErrorContains(t, err, "job c: deadlock victim")

	assert.Equal(t, map[string]int64{"a": 3, "b": 3}, loaded)
	require.Len(t, configs, 3)
	for _, cfg := range configs {
		assert.Equal(t, 7, cfg.BatchSize)
		assert.Equal(t, "sqlite", cfg.Kind)
	}
}

func TestLoadStopsOnInvalidJob(t *testing.T) {
	swapSeams(t,
		func(storage.Config) (storage.Repository, error) {
			t.Error("repository must not be opened for an invalid job")
			return nil, errors.New("unexpected")
		},
		func(config.Job) (datasource.Source, error) { return stringSource(""), nil },
	)

	job := writeFile(t, t.TempDir(), "x.yaml", "model: nope\nsource: {path: x.jsonl}\nstorage: {kind: sqlite, dsn: 'file:x.db'}\n")
	_, errOut, err := execute(t, "load", job)
	assert.EqualError(t, err, "1 of 1 job(s) invalid")
	assert.Contains(t, errOut, `unknown model "nope"`)
}

func TestLoadDecodeError(t *testing.T) {
	swapSeams(t,
		func(cfg storage.Config) (storage.Repository, error) {
			return &fakeRepo{mu: &sync.Mutex{}, loaded: map[string]int64{}, job: cfg.Job}, nil
		},
		func(config.Job) (datasource.Source, error) {
			return stringSource(`{"id":1}` + "\n" + `{"id":"two"}` + "\n"), nil
		},
	)

	job := writeFile(t, t.TempDir(), "x.yaml", "model: language\nsource: {path: x.jsonl}\nstorage: {kind: sqlite, dsn: 'file:x.db'}\n")
	_, _, err := execute(t, "load", job)
	assert.ErrorContains(t, err, "record 2:")
}

func TestLoadBadParallel(t *testing.T) {
	_, _, err := execute(t, "load", "--parallel", "0")
	assert.EqualError(t, err, "--parallel must be at least 1, got 0")
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := newLogger(&buf, "json", true)
	require.NoError(t, err)
	l.Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(&buf, "xml", false)
	assert.ErrorContains(t, err, "unknown --log-format")
}

func TestSetupMetrics(t *testing.T) {
	flush, err := setupMetrics([]config.Job{{Name: "a", Metrics: config.Metrics{Backend: "none"}}})
	require.NoError(t, err)
	flush()

	_, err = setupMetrics([]config.Job{{Name: "a", Metrics: config.Metrics{Backend: "prometheus"}}})
	assert.ErrorContains(t, err, "gateway URL is required")

	_, err = setupMetrics([]config.Job{{Metrics: config.Metrics{Backend: "graphite"}}})
	assert.ErrorContains(t, err, `unknown metrics backend "graphite"`)
}

// TestLoadCSVWithEncoding loads a windows-1250 CSV export end to end.
func TestLoadCSVWithEncoding(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "umbraco.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE umbracoLanguage (
		id INTEGER PRIMARY KEY, languageISOCode TEXT, languageCultureName TEXT,
		isDefaultVariantLang INTEGER NOT NULL, mandatory INTEGER NOT NULL, fallbackLanguageId INTEGER)`)
	require.NoError(t, err)

	// "Čeština" in windows-1250.
	writeFile(t, dir, "langs.csv", "id;languageISOCode;languageCultureName;isDefaultVariantLang;mandatory\n1;cs-CZ;\xc8e\x9atina;ano;ne\n")
	job := writeFile(t, dir, "langs.yaml", `
model: language
source: {path: langs.csv, format: csv, encoding: windows-1250, csv: {comma: ";"}}
storage: {kind: sqlite, dsn: `+dbPath+`, table: umbracoLanguage}
`)

	_, errOut, err := execute(t, "load", job)
	require.NoError(t, err, errOut)

	var name string
	var isDefault, mandatory bool
	require.NoError(t, db.QueryRow(`SELECT languageCultureName, isDefaultVariantLang, mandatory FROM umbracoLanguage WHERE id = 1`).Scan(&name, &isDefault, &mandatory))
	assert.Equal(t, "Čeština", name)
	assert.True(t, isDefault)
	assert.False(t, mandatory)
}
