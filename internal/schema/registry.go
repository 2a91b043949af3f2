package schema

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"bulkload/internal/bulk"
	"bulkload/internal/meta"
)

// Model is a loadable record type.
type Model struct {
	Name  string
	Table *meta.Table
	// Open returns a cursor over the JSONL records in r.
	Open func(r io.Reader, opts ...bulk.RecordOption) (*bulk.Cursor, error)
	// OpenCSV returns a cursor over the CSV rows in r.
	OpenCSV func(r io.Reader, o CSVOptions, opts ...bulk.RecordOption) (*bulk.Cursor, error)
}

var (
	mu     sync.RWMutex
	models = map[string]Model{}
)

func init() {
	MustRegister[Node]("node")
	MustRegister[Language]("language")
	MustRegister[KeyValue]("key_value")
	MustRegister[PropertyData]("property_data")
}

// Register adds T under name. Registering a name twice is an error.
func Register[T any](name string) error {
	t, err := meta.For[T]()
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := models[name]; dup {
		return fmt.Errorf("schema: model %q already registered", name)
	}
	models[name] = Model{
		Name:  name,
		Table: t,
		Open: func(r io.Reader, opts ...bulk.RecordOption) (*bulk.Cursor, error) {
			return bulk.NewRecordCursor(DecodeJSONL[T](r), opts...)
		},
		OpenCSV: func(r io.Reader, o CSVOptions, opts ...bulk.RecordOption) (*bulk.Cursor, error) {
			return bulk.NewRecordCursor(DecodeCSV[T](r, o), opts...)
		},
	}
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](name string) {
	if err := Register[T](name); err != nil {
		panic(err)
	}
}

// Lookup returns the model registered under name.
func Lookup(name string) (Model, bool) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := models[name]
	return m, ok
}

// Names returns the registered model names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(models))
	for n := range models {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
