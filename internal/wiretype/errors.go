package wiretype

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned for types outside the catalog and for the
	// catalogued types the bulk path cannot carry (structured, timestamp).
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrIncompatibleAttributes is returned when a column supplies an optional
	// attribute its type does not accept.
	ErrIncompatibleAttributes = errors.New("incompatible attributes")

	// ErrOutOfRange is matched by every *RangeError.
	ErrOutOfRange = errors.New("out of range")

	// ErrMissingAttribute is returned when a type requires an attribute that
	// was not supplied (e.g. char without size, udt without both parts).
	ErrMissingAttribute = errors.New("missing attribute")

	// ErrInvalidQualifier is returned for inconsistent XML schema-collection
	// qualifiers.
	ErrInvalidQualifier = errors.New("invalid qualifier")
)

// RangeError reports a bound violation on a single column parameter.
type RangeError struct {
	Type   Type
	Param  string // "size", "precision" or "scale"
	Value  int
	Limit  int
	Reason string
}

func (e *RangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s %d out of range: %s", e.Type, e.Param, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: %s %d out of range (0, %d]", e.Type, e.Param, e.Value, e.Limit)
}

func (e *RangeError) Is(target error) bool { return target == ErrOutOfRange }
