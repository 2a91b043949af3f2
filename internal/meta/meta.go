// Package meta derives table and column metadata from Go record types.
//
// Columns are declared with a `db` struct tag, the same convention the
// schema models use:
//
//	type Node struct {
//	    ID    int32   `db:"id,identity"`
//	    Path  string  `db:"path,size=150"`
//	    Text  *string `db:"text,size=255,null"`
//	    Value string  `db:"value,custom=ntext"`
//	    Total string  `db:"total,type=decimal,precision=38,scale=6"`
//	    Rank  int     `db:"rank,computed"`
//	}
//
// The first tag element is the column name (empty means the field name); the
// remaining elements are flags (unique, identity, null, computed, resultonly)
// or key=value options (size, precision, scale, type, custom). A tag of "-"
// skips the field. Pointer fields are always nullable.
//
// A record type may implement TableName() and SchemaName() to name its table;
// otherwise the Go type name and "dbo" are used.
package meta

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// Column describes one mapped field of a record type.
type Column struct {
	Name   string
	Field  string
	Index  []int
	GoType reflect.Type

	// Size and Precision are zero when not declared.
	Size      int
	Precision int
	// Scale is nil when not declared; zero is a valid scale.
	Scale *int

	// DbType is an explicitly declared generic type (type=...).
	DbType string
	// CustomType is a custom type tag (custom=...).
	CustomType string

	Unique     bool
	Identity   bool
	Nullable   bool
	Computed   bool
	ResultOnly bool
}

// Eligible reports whether the column takes part in writes. Computed and
// result-only columns are read-side only.
func (c Column) Eligible() bool { return !c.Computed && !c.ResultOnly }

// Table is the metadata of one record type.
type Table struct {
	Name    string
	Schema  string
	Type    reflect.Type
	Columns []Column
}

// Eligible returns the columns that take part in a bulk load, in declaration
// order.
func (t *Table) Eligible() []Column {
	out := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Eligible() {
			out = append(out, c)
		}
	}
	return out
}

// Tabler is implemented by record types that name their table.
type Tabler interface{ TableName() string }

// Schemer is implemented by record types that name their schema.
type Schemer interface{ SchemaName() string }

// DefaultSchema is used for record types that do not implement Schemer.
const DefaultSchema = "dbo"

var cache sync.Map // reflect.Type -> *Table

// For returns the metadata of record type T.
func For[T any]() (*Table, error) {
	return Of(reflect.TypeOf((*T)(nil)).Elem())
}

// Of returns the metadata of the struct type rt (or pointer to struct).
// Results are cached per type; the returned Table must not be modified.
func Of(rt reflect.Type) (*Table, error) {
	if rt == nil {
		return nil, fmt.Errorf("meta: nil type")
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if v, ok := cache.Load(rt); ok {
		return v.(*Table), nil
	}
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("meta: %s is not a struct", rt)
	}

	t := &Table{Name: rt.Name(), Schema: DefaultSchema, Type: rt}
	proto := reflect.New(rt).Interface()
	if n, ok := proto.(Tabler); ok {
		t.Name = n.TableName()
	}
	if s, ok := proto.(Schemer); ok {
		t.Schema = s.SchemaName()
	}

	cols, err := columns(rt, nil)
	if err != nil {
		return nil, fmt.Errorf("meta: %s: %w", rt, err)
	}
	t.Columns = cols

	v, _ := cache.LoadOrStore(rt, t)
	return v.(*Table), nil
}

func columns(rt reflect.Type, prefix []int) ([]Column, error) {
	var out []Column
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		index := append(append([]int{}, prefix...), i)
		tag, tagged := f.Tag.Lookup("db")
		if tag == "-" {
			continue
		}
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && !tagged && f.Type.Kind() == reflect.Struct {
			inner, err := columns(f.Type, index)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
			continue
		}
		c, err := parseTag(f, tag)
		if err != nil {
			return nil, err
		}
		c.Index = index
		out = append(out, c)
	}
	return out, nil
}

func parseTag(f reflect.StructField, tag string) (Column, error) {
	c := Column{Field: f.Name, GoType: f.Type}
	parts := strings.Split(tag, ",")
	c.Name = strings.TrimSpace(parts[0])
	if c.Name == "" {
		c.Name = f.Name
	}
	if f.Type.Kind() == reflect.Pointer {
		c.Nullable = true
	}

	for _, raw := range parts[1:] {
		opt := strings.TrimSpace(raw)
		if opt == "" {
			continue
		}
		key, val, hasVal := strings.Cut(opt, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "unique":
			c.Unique = true
		case "identity", "key":
			c.Identity = true
		case "null", "nullable":
			c.Nullable = true
		case "computed":
			c.Computed = true
		case "resultonly":
			c.ResultOnly = true
		case "size", "length", "precision", "scale":
			if !hasVal {
				return Column{}, fmt.Errorf("field %s: %s requires a value", f.Name, key)
			}
			n, err := strconv.Atoi(val)
			if err != nil {
				return Column{}, fmt.Errorf("field %s: %s=%q: %w", f.Name, key, val, err)
			}
			switch key {
			case "size", "length":
				c.Size = n
			case "precision":
				c.Precision = n
			case "scale":
				c.Scale = &n
			}
		case "type":
			c.DbType = val
		case "custom":
			c.CustomType = val
		default:
			return Column{}, fmt.Errorf("field %s: unknown db tag option %q", f.Name, key)
		}
	}
	return c, nil
}
