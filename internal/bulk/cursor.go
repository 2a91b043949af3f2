package bulk

import (
	"database/sql/driver"
	"reflect"
	"strings"
)

// State is the position of a Cursor in its row stream.
type State int

const (
	BeforeFirstRow State = iota
	OnRow
	Exhausted
	Closed
)

func (s State) String() string {
	switch s {
	case BeforeFirstRow:
		return "before-first-row"
	case OnRow:
		return "on-row"
	case Exhausted:
		return "exhausted"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Rows is the row source behind a Cursor. Value(i) returns the value of
// column i of the current row, in the column's native type, or nil for null.
// Close must release the source; the Cursor calls it at most once.
type Rows interface {
	Populator
	Next() bool
	Value(i int) any
	Err() error
	Close() error
}

// Cursor is a forward-only, single-pass row cursor with a lazily built column
// descriptor table.
type Cursor struct {
	schema *Schema
	rows   Rows
	state  State
	err    error

	affected int64
	read     int64
}

// NewCursor returns a Cursor over rows positioned before the first row.
func NewCursor(rows Rows) *Cursor {
	return &Cursor{schema: NewSchema(rows), rows: rows, affected: -1}
}

// State returns the current cursor state.
func (c *Cursor) State() State { return c.state }

// Schema returns the schema and table names of the destination.
func (c *Cursor) Schema() (schema, table string) {
	return c.rows.SchemaName(), c.rows.TableName()
}

// FieldCount returns the number of columns, populating the schema if needed.
func (c *Cursor) FieldCount() (int, error) {
	if c.state == Closed {
		return 0, ErrClosed
	}
	return c.schema.Len()
}

// Columns returns the column descriptor table.
func (c *Cursor) Columns() ([]ColumnDescriptor, error) {
	if c.state == Closed {
		return nil, ErrClosed
	}
	return c.schema.Columns()
}

// ColumnMappings returns one mapping per column, source name equal to
// destination name, in ordinal order.
func (c *Cursor) ColumnMappings() ([]ColumnMapping, error) {
	if c.state == Closed {
		return nil, ErrClosed
	}
	return c.schema.ColumnMappings()
}

// Advance moves to the next row. It returns false once the source is
// exhausted, on a source error (see Err), or when the cursor is closed. The
// first call builds the column table before any row is pulled; a schema error
// stops the cursor without touching the source.
func (c *Cursor) Advance() bool {
	switch c.state {
	case Closed:
		c.err = ErrClosed
		return false
	case Exhausted:
		return false
	case BeforeFirstRow:
		if err := c.schema.populate(); err != nil {
			c.err = err
			return false
		}
	}
	if !c.rows.Next() {
		c.state = Exhausted
		c.err = c.rows.Err()
		return false
	}
	if c.state == BeforeFirstRow {
		c.affected = 0
	} else {
		c.affected++
	}
	c.read++
	c.state = OnRow
	return true
}

// Err returns the error that stopped Advance, if any.
func (c *Cursor) Err() error { return c.err }

// CurrentValue returns the value of column i for the current row.
func (c *Cursor) CurrentValue(i int) (any, error) {
	if err := c.valueState(); err != nil {
		return nil, err
	}
	if _, err := c.schema.column(i); err != nil {
		return nil, err
	}
	return c.rows.Value(i), nil
}

// Values fills dst with the current row and returns the number of values
// copied, min(len(dst), FieldCount).
func (c *Cursor) Values(dst []any) (int, error) {
	if err := c.valueState(); err != nil {
		return 0, err
	}
	n, err := c.schema.Len()
	if err != nil {
		return 0, err
	}
	n = min(n, len(dst))
	for i := 0; i < n; i++ {
		dst[i] = c.rows.Value(i)
	}
	return n, nil
}

// IsNull reports whether column i of the current row is null. A
// driver.Valuer whose value is nil counts as null.
func (c *Cursor) IsNull(i int) (bool, error) {
	v, err := c.CurrentValue(i)
	if err != nil {
		return false, err
	}
	if v == nil {
		return true, nil
	}
	if vr, ok := v.(driver.Valuer); ok {
		dv, err := vr.Value()
		return err == nil && dv == nil, nil
	}
	return false, nil
}

// ColumnOrdinal returns the ordinal of the column named name. An exact match
// is tried first, then a case-insensitive one; within each pass the last
// matching column wins.
func (c *Cursor) ColumnOrdinal(name string) (int, error) {
	cols, err := c.Columns()
	if err != nil {
		return 0, err
	}
	for i := len(cols) - 1; i >= 0; i-- {
		if cols[i].Name == name {
			return i, nil
		}
	}
	for i := len(cols) - 1; i >= 0; i-- {
		if strings.EqualFold(cols[i].Name, name) {
			return i, nil
		}
	}
	return 0, &IndexError{Name: name, Count: len(cols)}
}

// ColumnName returns the name of column i.
func (c *Cursor) ColumnName(i int) (string, error) {
	d, err := c.descriptor(i)
	if err != nil {
		return "", err
	}
	return d.Name, nil
}

// ColumnNativeType returns the Go type of values of column i.
func (c *Cursor) ColumnNativeType(i int) (reflect.Type, error) {
	d, err := c.descriptor(i)
	if err != nil {
		return nil, err
	}
	return d.NativeType, nil
}

// ColumnTypeName returns the canonical type text of column i.
func (c *Cursor) ColumnTypeName(i int) (string, error) {
	d, err := c.descriptor(i)
	if err != nil {
		return "", err
	}
	return d.TypeName, nil
}

// Nested is not supported: a Cursor never carries nested row sets. An
// ordinal outside the column range reports an index error instead.
func (c *Cursor) Nested(i int) error {
	if _, err := c.descriptor(i); err != nil {
		return err
	}
	return ErrNotApplicable
}

// Depth is always zero.
func (c *Cursor) Depth() int { return 0 }

// NextResult always reports false; a Cursor has exactly one result set.
func (c *Cursor) NextResult() bool { return false }

// RowsAffected is -1 until the first successful Advance, 0 after it, and
// grows by one with every further successful Advance.
func (c *Cursor) RowsAffected() int64 { return c.affected }

// RowsRead is the number of successful Advance calls.
func (c *Cursor) RowsRead() int64 { return c.read }

// Close releases the row source. Only the first call has any effect.
func (c *Cursor) Close() error {
	if c.state == Closed {
		return nil
	}
	c.state = Closed
	return c.rows.Close()
}

func (c *Cursor) valueState() error {
	switch c.state {
	case Closed:
		return ErrClosed
	case OnRow:
		return nil
	}
	return ErrNoRow
}

func (c *Cursor) descriptor(i int) (*ColumnDescriptor, error) {
	if c.state == Closed {
		return nil, ErrClosed
	}
	return c.schema.column(i)
}
