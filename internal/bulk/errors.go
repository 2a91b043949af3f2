package bulk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidColumn is returned by AddColumn for an empty column name.
	ErrInvalidColumn = errors.New("invalid column")

	// ErrNoColumns means a Populator finished without adding a column. It is a
	// programming error in the populator, not a property of the input data.
	ErrNoColumns = errors.New("internal defect: populate columns added no columns")

	// ErrClosed is returned by schema and value accessors after Close.
	ErrClosed = errors.New("cursor is closed")

	// ErrNoRow is returned by value accessors when the cursor is not
	// positioned on a row.
	ErrNoRow = errors.New("cursor is not positioned on a row")

	// ErrIndex is matched by every *IndexError.
	ErrIndex = errors.New("index out of range")

	// ErrUnsupportedCustomType is returned for a custom type tag outside the
	// fixed custom type table.
	ErrUnsupportedCustomType = errors.New("unsupported custom type")

	// ErrNotApplicable is returned by Nested; a cursor carries one flat row
	// stream.
	ErrNotApplicable = errors.New("not applicable")
)

// IndexError reports an ordinal outside [0, FieldCount) or a column name that
// matched no column.
type IndexError struct {
	Name    string
	Ordinal int
	Count   int
}

func (e *IndexError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("column %q not found", e.Name)
	}
	return fmt.Sprintf("ordinal %d out of range [0, %d)", e.Ordinal, e.Count)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndex }
