package schema

import (
	"encoding"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"reflect"
	"strconv"
	"strings"
	"time"

	"bulkload/internal/meta"
)

const utf8BOM = "\uFEFF"

// CSVOptions controls DecodeCSV. The zero value reads comma-separated input
// with trimmed cells.
type CSVOptions struct {
	Comma      rune
	LazyQuotes bool
	// KeepSpace disables trimming of cells.
	KeepSpace bool
	// HeaderMap renames source headers to column names before matching.
	HeaderMap map[string]string
	// SkipUnknown ignores headers that match no column instead of failing.
	SkipUnknown bool
	// DateLayout is tried first for time fields, before RFC 3339,
	// "2006-01-02 15:04:05", "2006-01-02" and "02.01.2006".
	DateLayout string
	// Truthy and Falsy replace the default boolean vocabularies.
	Truthy []string
	Falsy  []string
}

var (
	defaultTruthy = []string{"1", "t", "true", "yes", "y", "ano"}
	defaultFalsy  = []string{"0", "f", "false", "no", "n", "ne"}

	timeType            = reflect.TypeFor[time.Time]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// errEmpty is returned for an empty cell in a field that cannot be null.
var errEmpty = errors.New("empty value for a non-nullable field")

// setter parses s into the field f. f is never a pointer.
type setter func(f reflect.Value, s string) error

type csvField struct {
	col    meta.Column
	ptr    bool
	set    setter
	source int
}

// DecodeCSV yields one T per data row of r. The first row is a header whose
// cells name columns of T (case-insensitive); cells are parsed into the
// field types. Empty cells leave pointer fields nil. As with DecodeJSONL, the
// first error ends the sequence and carries the 1-based record number.
func DecodeCSV[T any](r io.Reader, opt CSVOptions) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		t, err := meta.For[T]()
		if err != nil {
			yield(zero, err)
			return
		}

		cr := csv.NewReader(r)
		if opt.Comma != 0 {
			cr.Comma = opt.Comma
		}
		cr.LazyQuotes = opt.LazyQuotes
		cr.ReuseRecord = true

		header, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(zero, fmt.Errorf("read csv header: %w", err))
			return
		}
		fields, err := planCSV(t, header, opt)
		if err != nil {
			yield(zero, err)
			return
		}
		cr.FieldsPerRecord = len(header)

		for n := 1; ; n++ {
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(zero, fmt.Errorf("record %d: %w", n, err))
				return
			}

			var rec T
			v := reflect.ValueOf(&rec).Elem()
			for _, f := range fields {
				cell := row[f.source]
				if !opt.KeepSpace {
					cell = strings.TrimSpace(cell)
				}
				if err := f.assign(v, cell); err != nil {
					yield(zero, fmt.Errorf("record %d: column %s: %w", n, f.col.Name, err))
					return
				}
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (f csvField) assign(rec reflect.Value, s string) error {
	fv := fieldByIndexAlloc(rec, f.col.Index)
	if s == "" {
		if f.ptr {
			return nil
		}
		if fv.Kind() == reflect.String {
			fv.SetString("")
			return nil
		}
		return errEmpty
	}
	if f.ptr {
		p := reflect.New(fv.Type().Elem())
		if err := f.set(p.Elem(), s); err != nil {
			return err
		}
		fv.Set(p)
		return nil
	}
	return f.set(fv, s)
}

// planCSV matches header cells to columns and resolves a setter per column.
func planCSV(t *meta.Table, header []string, opt CSVOptions) ([]csvField, error) {
	byName := make(map[string]meta.Column, len(t.Columns))
	for _, c := range t.Columns {
		byName[strings.ToLower(c.Name)] = c
	}
	truthy, falsy := lowerSet(opt.Truthy), lowerSet(opt.Falsy)
	if truthy == nil && falsy == nil {
		truthy, falsy = lowerSet(defaultTruthy), lowerSet(defaultFalsy)
	}

	seen := make(map[string]bool, len(header))
	fields := make([]csvField, 0, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		if m, ok := opt.HeaderMap[name]; ok {
			name = m
		}
		col, ok := byName[strings.ToLower(name)]
		if !ok {
			if opt.SkipUnknown {
				continue
			}
			return nil, fmt.Errorf("csv header %q matches no column of %s", name, t.Name)
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("csv header %q maps to column %s twice", name, col.Name)
		}
		seen[col.Name] = true

		base := col.GoType
		ptr := base.Kind() == reflect.Pointer
		if ptr {
			base = base.Elem()
		}
		set, err := setterFor(base, opt.DateLayout, truthy, falsy)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		fields = append(fields, csvField{col: col, ptr: ptr, set: set, source: i})
	}
	return fields, nil
}

func setterFor(rt reflect.Type, layout string, truthy, falsy map[string]struct{}) (setter, error) {
	switch {
	case rt == timeType:
		layouts := []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02", "02.01.2006"}
		if layout != "" {
			layouts = append([]string{layout}, layouts...)
		}
		return func(f reflect.Value, s string) error {
			for _, l := range layouts {
				if tm, err := time.Parse(l, s); err == nil {
					f.Set(reflect.ValueOf(tm))
					return nil
				}
			}
			return fmt.Errorf("cannot parse %q as a date/time", s)
		}, nil
	case reflect.PointerTo(rt).Implements(textUnmarshalerType):
		return func(f reflect.Value, s string) error {
			return f.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
		}, nil
	}

	switch rt.Kind() {
	case reflect.String:
		return func(f reflect.Value, s string) error {
			f.SetString(s)
			return nil
		}, nil
	case reflect.Bool:
		return func(f reflect.Value, s string) error {
			ls := strings.ToLower(s)
			if _, ok := truthy[ls]; ok {
				f.SetBool(true)
				return nil
			}
			if _, ok := falsy[ls]; ok {
				f.SetBool(false)
				return nil
			}
			return fmt.Errorf("cannot parse %q as a boolean", s)
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(f reflect.Value, s string) error {
			n, ok := toInt(s)
			if !ok {
				return fmt.Errorf("cannot parse %q as an integer", s)
			}
			if f.OverflowInt(n) {
				return fmt.Errorf("%d overflows %s", n, f.Type())
			}
			f.SetInt(n)
			return nil
		}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(f reflect.Value, s string) error {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return err
			}
			if f.OverflowUint(n) {
				return fmt.Errorf("%d overflows %s", n, f.Type())
			}
			f.SetUint(n)
			return nil
		}, nil
	case reflect.Float32, reflect.Float64:
		return func(f reflect.Value, s string) error {
			x, err := strconv.ParseFloat(s, rt.Bits())
			if err != nil {
				return err
			}
			f.SetFloat(x)
			return nil
		}, nil
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			return func(f reflect.Value, s string) error {
				f.SetBytes([]byte(s))
				return nil
			}, nil
		}
	}
	return nil, fmt.Errorf("field type %s cannot be read from csv", rt)
}

// toInt parses integers, accepting a float form with no fraction ("42.0").
func toInt(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

func lowerSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return m
}

// fieldByIndexAlloc is reflect.Value.FieldByIndex that allocates nil
// embedded struct pointers on the way.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
