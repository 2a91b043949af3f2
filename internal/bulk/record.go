package bulk

import (
	"fmt"
	"iter"
	"reflect"
	"slices"

	"bulkload/internal/meta"
	"bulkload/internal/wiretype"
)

// DefaultFloatPrecision is the mantissa width given to float columns that
// declare no precision. SQL Server uses the same default for a bare float.
const DefaultFloatPrecision = 53

// RecordOption configures NewRecordCursor.
type RecordOption func(*recordConfig)

type recordConfig struct {
	table  *meta.Table
	mapper TypeMapper
}

// WithTable overrides the metadata derived from the record type.
func WithTable(t *meta.Table) RecordOption {
	return func(c *recordConfig) { c.table = t }
}

// WithTypeMapper replaces SQLServerTypes.
func WithTypeMapper(m TypeMapper) RecordOption {
	return func(c *recordConfig) { c.mapper = m }
}

// RecordReader is the Rows implementation over a sequence of T. T may be a
// struct type or a pointer to one; a nil pointer record yields all-null
// values.
type RecordReader[T any] struct {
	table  *meta.Table
	cols   []meta.Column
	mapper TypeMapper
	get    []accessor

	next    func() (T, error, bool)
	stop    func()
	stopped bool

	cur reflect.Value
	err error
}

type accessor func(rec reflect.Value) any

// NewRecordCursor returns a Cursor over seq. The sequence is pulled lazily,
// one record per Advance, and is stopped exactly once: when it is exhausted,
// when it yields an error, or when the cursor is closed.
func NewRecordCursor[T any](seq iter.Seq2[T, error], opts ...RecordOption) (*Cursor, error) {
	r, err := NewRecordReader(seq, opts...)
	if err != nil {
		return nil, err
	}
	return NewCursor(r), nil
}

// NewRecordReader binds seq to the metadata of T.
func NewRecordReader[T any](seq iter.Seq2[T, error], opts ...RecordOption) (*RecordReader[T], error) {
	if seq == nil {
		return nil, fmt.Errorf("bulk: nil record sequence")
	}
	cfg := recordConfig{mapper: SQLServerTypes{}}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.table == nil {
		t, err := meta.For[T]()
		if err != nil {
			return nil, err
		}
		cfg.table = t
	}

	recType := reflect.TypeOf((*T)(nil)).Elem()
	for recType.Kind() == reflect.Pointer {
		recType = recType.Elem()
	}
	if cfg.table.Type != nil && cfg.table.Type != recType {
		return nil, fmt.Errorf("bulk: table %s describes %s, not %s", cfg.table.Name, cfg.table.Type, recType)
	}

	r := &RecordReader[T]{
		table:  cfg.table,
		cols:   cfg.table.Eligible(),
		mapper: cfg.mapper,
	}
	r.next, r.stop = iter.Pull2(seq)
	return r, nil
}

// SchemaName implements Populator.
func (r *RecordReader[T]) SchemaName() string { return r.table.Schema }

// TableName implements Populator.
func (r *RecordReader[T]) TableName() string { return r.table.Name }

// PopulateColumns adds one column per eligible record column, in declaration
// order. The wire type comes from the custom type tag when present, then the
// declared generic type, then the Go field type.
func (r *RecordReader[T]) PopulateColumns(s *Schema) error {
	get := make([]accessor, 0, len(r.cols))
	for _, c := range r.cols {
		typ, err := r.wireType(c)
		if err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
		def := ColumnDef{
			Name:     c.Name,
			Type:     typ,
			Unique:   c.Unique,
			Key:      c.Identity,
			Nullable: c.Nullable,
		}
		if c.Size > 0 {
			def.Size = Int(c.Size)
		}
		if c.Precision > 0 {
			def.Precision = Int(c.Precision)
		} else if typ == wiretype.Float {
			def.Precision = Int(DefaultFloatPrecision)
		}
		def.Scale = c.Scale
		if err := s.AddColumn(def); err != nil {
			return err
		}
		native, _ := wiretype.NativeType(typ)
		get = append(get, newAccessor(c, native))
	}
	r.get = get
	return nil
}

func (r *RecordReader[T]) wireType(c meta.Column) (wiretype.Type, error) {
	if c.CustomType != "" {
		return CustomType(c.CustomType)
	}
	if c.DbType != "" {
		return r.mapper.MapGeneric(c.DbType)
	}
	return r.mapper.MapGoType(c.GoType)
}

// Next implements Rows.
func (r *RecordReader[T]) Next() bool {
	if r.stopped {
		return false
	}
	rec, err, ok := r.next()
	if !ok {
		r.cur = reflect.Value{}
		r.Close()
		return false
	}
	if err != nil {
		r.cur = reflect.Value{}
		r.err = err
		r.Close()
		return false
	}
	v := reflect.ValueOf(&rec).Elem()
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem()
	}
	r.cur = v
	return true
}

// Value implements Rows. It returns nil when the current record is a nil
// pointer or the field holds a nil pointer.
func (r *RecordReader[T]) Value(i int) any {
	if !r.cur.IsValid() || i < 0 || i >= len(r.get) {
		return nil
	}
	return r.get[i](r.cur)
}

// Err implements Rows.
func (r *RecordReader[T]) Err() error { return r.err }

// Close stops the underlying sequence. It is safe to call more than once.
func (r *RecordReader[T]) Close() error {
	if !r.stopped {
		r.stopped = true
		r.stop()
	}
	return nil
}

// newAccessor returns the value accessor for c. Values whose Go type differs
// from native only in width or name (int vs int64, a named string type) are
// converted to native.
func newAccessor(c meta.Column, native reflect.Type) accessor {
	index := slices.Clone(c.Index)
	ft := c.GoType
	for ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	convert := native != nil && ft != native && sameFamily(ft.Kind(), native.Kind()) && ft.ConvertibleTo(native)

	return func(rec reflect.Value) any {
		f, err := rec.FieldByIndexErr(index)
		if err != nil {
			return nil
		}
		for f.Kind() == reflect.Pointer {
			if f.IsNil() {
				return nil
			}
			f = f.Elem()
		}
		if f.Kind() == reflect.Interface {
			if f.IsNil() {
				return nil
			}
			return f.Interface()
		}
		if f.Kind() == reflect.Slice && f.IsNil() {
			return nil
		}
		if convert {
			f = f.Convert(native)
		}
		return f.Interface()
	}
}

func sameFamily(a, b reflect.Kind) bool { return family(a) != 0 && family(a) == family(b) }

func family(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return 1
	case reflect.Float32, reflect.Float64:
		return 2
	case reflect.String:
		return 3
	case reflect.Bool:
		return 4
	}
	return 0
}

// FromSlice returns a sequence over recs that never yields an error.
func FromSlice[T any](recs []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// FromSeq adapts an error-free sequence.
func FromSeq[T any](seq iter.Seq[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for r := range seq {
			if !yield(r, nil) {
				return
			}
		}
	}
}
