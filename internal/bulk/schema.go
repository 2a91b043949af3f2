// Package bulk adapts streams of Go records to the column-described,
// single-pass row protocol consumed by bulk-load transports.
//
// The package is layered the same way the transports consume it:
//
//   - Schema builds the ordered column descriptor table, validating every
//     column against the wiretype catalog, and derives the name-to-name column
//     mappings.
//   - Cursor is the forward-only row contract (advance, per-column value,
//     ordinal lookup, idempotent close) on top of a Schema.
//   - RecordReader binds a sequence of typed records and their meta.Table to
//     a Cursor.
//
// A Cursor is owned by one goroutine; nothing in this package is safe for
// concurrent use on the same instance.
package bulk

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"bulkload/internal/wiretype"
)

// ColumnDescriptor is one immutable row of the column descriptor table.
type ColumnDescriptor struct {
	Name    string
	Ordinal int

	Size      *int
	Precision *int
	Scale     *int

	Unique   bool
	Key      bool
	Nullable bool

	Type       wiretype.Type
	NativeType reflect.Type
	// TypeName is the canonical type text, e.g. "decimal(38,6)".
	TypeName string
	// IsLong marks unbounded values such as nvarchar(max).
	IsLong bool

	UDTSchema       string
	UDTType         string
	XMLDatabase     string
	XMLOwningSchema string
	XMLName         string

	BaseSchema string
	BaseTable  string
}

// ColumnMapping pairs a source column with its destination column. The two
// names are always equal: column identity travels verbatim from the record
// metadata to the destination table.
type ColumnMapping struct {
	Source      string
	Destination string
}

// ColumnDef is the input to Schema.AddColumn.
type ColumnDef struct {
	Name string
	Type wiretype.Type
	wiretype.Attrs

	Unique   bool
	Key      bool
	Nullable bool
}

// Populator supplies the columns of a Schema. PopulateColumns calls AddColumn
// once per logical column; it is invoked at most once per Schema.
type Populator interface {
	SchemaName() string
	TableName() string
	PopulateColumns(s *Schema) error
}

// Schema is the lazily populated column descriptor table.
type Schema struct {
	pop       Populator
	cols      []ColumnDescriptor
	mappings  []ColumnMapping
	populated bool
	err       error
}

// NewSchema returns an empty Schema populated on first access by p.
func NewSchema(p Populator) *Schema { return &Schema{pop: p} }

// AddColumn validates def and appends one descriptor and one mapping.
//
// Checks run in order and the first failure wins: empty name, non-positive
// size, non-positive precision, negative scale, unknown wire type, optional
// attributes the type does not accept, then the type-specific bounds.
func (s *Schema) AddColumn(def ColumnDef) error {
	if def.Name == "" {
		return fmt.Errorf("%w: column name must be non-empty", ErrInvalidColumn)
	}
	if def.Size != nil && *def.Size <= 0 {
		return columnErr(def.Name, &wiretype.RangeError{Type: def.Type, Param: "size", Value: *def.Size, Reason: "must be positive"})
	}
	if def.Precision != nil && *def.Precision <= 0 {
		return columnErr(def.Name, &wiretype.RangeError{Type: def.Type, Param: "precision", Value: *def.Precision, Reason: "must be positive"})
	}
	if def.Scale != nil && *def.Scale < 0 {
		return columnErr(def.Name, &wiretype.RangeError{Type: def.Type, Param: "scale", Value: *def.Scale, Reason: "must not be negative"})
	}
	if err := wiretype.Check(def.Type, def.Attrs); err != nil {
		return columnErr(def.Name, err)
	}

	schemaName := s.schemaName()
	typeName, isLong, err := wiretype.Render(def.Type, def.Attrs, schemaName)
	if err != nil {
		return columnErr(def.Name, err)
	}
	native, _ := wiretype.NativeType(def.Type)

	s.cols = append(s.cols, ColumnDescriptor{
		Name:            def.Name,
		Ordinal:         len(s.cols),
		Size:            def.Size,
		Precision:       def.Precision,
		Scale:           def.Scale,
		Unique:          def.Unique,
		Key:             def.Key,
		Nullable:        def.Nullable,
		Type:            def.Type,
		NativeType:      native,
		TypeName:        typeName,
		IsLong:          isLong,
		UDTSchema:       deref(def.UDTSchema),
		UDTType:         deref(def.UDTType),
		XMLDatabase:     deref(def.XMLDatabase),
		XMLOwningSchema: deref(def.XMLOwningSchema),
		XMLName:         deref(def.XMLName),
		BaseSchema:      schemaName,
		BaseTable:       s.tableName(),
	})
	s.mappings = append(s.mappings, ColumnMapping{Source: def.Name, Destination: def.Name})
	return nil
}

// Columns returns a copy of the descriptor table, populating it first.
func (s *Schema) Columns() ([]ColumnDescriptor, error) {
	if err := s.populate(); err != nil {
		return nil, err
	}
	return slices.Clone(s.cols), nil
}

// ColumnMappings returns a copy of the column mappings, populating the table
// first.
func (s *Schema) ColumnMappings() ([]ColumnMapping, error) {
	if err := s.populate(); err != nil {
		return nil, err
	}
	return slices.Clone(s.mappings), nil
}

// Len returns the number of columns, populating the table first.
func (s *Schema) Len() (int, error) {
	if err := s.populate(); err != nil {
		return 0, err
	}
	return len(s.cols), nil
}

func (s *Schema) column(i int) (*ColumnDescriptor, error) {
	if err := s.populate(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s.cols) {
		return nil, &IndexError{Ordinal: i, Count: len(s.cols)}
	}
	return &s.cols[i], nil
}

// populate runs the Populator once. A failure is sticky: later calls return
// the same error without re-running the populator.
func (s *Schema) populate() error {
	if s.populated || len(s.cols) > 0 {
		return s.err
	}
	s.populated = true
	if s.pop == nil {
		s.err = ErrNoColumns
		return s.err
	}
	if err := s.pop.PopulateColumns(s); err != nil {
		s.err = fmt.Errorf("populate %s: %w", s.tableName(), err)
		return s.err
	}
	if len(s.cols) == 0 {
		s.err = ErrNoColumns
		return s.err
	}
	slog.Debug("bulk: schema populated", "table", s.tableName(), "columns", len(s.cols))
	return nil
}

func (s *Schema) schemaName() string {
	if s.pop == nil {
		return ""
	}
	return s.pop.SchemaName()
}

func (s *Schema) tableName() string {
	if s.pop == nil {
		return ""
	}
	return s.pop.TableName()
}

func columnErr(name string, err error) error {
	return fmt.Errorf("column %q: %w", name, err)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Int returns a pointer to n, for optional ColumnDef attributes.
func Int(n int) *int { return &n }

// String returns a pointer to s, for optional ColumnDef qualifiers.
func String(s string) *string { return &s }
