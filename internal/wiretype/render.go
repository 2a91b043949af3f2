package wiretype

import (
	"fmt"
	"strconv"
	"strings"
)

// Attrs carries the optional attributes of a column. A nil pointer means the
// attribute was not supplied; a non-nil pointer means it was, even when it
// points at an empty string or zero.
type Attrs struct {
	Size      *int
	Precision *int
	Scale     *int

	UDTSchema *string
	UDTType   *string

	XMLDatabase     *string
	XMLOwningSchema *string
	XMLName         *string
}

// Supplied returns the attribute bits present in a.
func (a Attrs) Supplied() Attr {
	var s Attr
	if a.Size != nil {
		s |= AttrSize
	}
	if a.Precision != nil {
		s |= AttrPrecision
	}
	if a.Scale != nil {
		s |= AttrScale
	}
	if a.UDTSchema != nil || a.UDTType != nil {
		s |= AttrUDT
	}
	if a.XMLDatabase != nil {
		s |= AttrXMLDatabase
	}
	if a.XMLOwningSchema != nil {
		s |= AttrXMLOwningSchema
	}
	if a.XMLName != nil {
		s |= AttrXMLName
	}
	return s
}

// Check verifies that t is catalogued and that every attribute supplied in a
// is one t accepts.
func Check(t Type, a Attrs) error {
	ok, known := allowed[t]
	if !known {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	if extra := a.Supplied() &^ ok; extra != 0 {
		return fmt.Errorf("%w: %s does not accept %s", ErrIncompatibleAttributes, t, extra)
	}
	return nil
}

const (
	maxSizeByte    = 8000
	maxSizeUnicode = 4000
	maxDecimal     = 38
	maxFloat       = 53
	maxFraction    = 7
)

// Render runs the type-specific bound checks and returns the canonical type
// text for a column of type t. isLong is set for the unbounded forms
// (nvarchar(max), varchar(max), varbinary(max)). defaultSchema is used as the
// owning schema of an XML schema collection when none is supplied.
//
// Render does not repeat the attribute compatibility check; call Check first.
func Render(t Type, a Attrs, defaultSchema string) (typeName string, isLong bool, err error) {
	switch t {
	case BigInt, Bit, Date, DateTime, Image, Int, Money, NText, Real,
		SmallDateTime, SmallInt, SmallMoney, Text, TinyInt, UniqueIdentifier:
		return t.String(), false, nil

	case Variant:
		return "sql_variant", false, nil

	case Binary, Char:
		n, err := requiredSize(t, a.Size, maxSizeByte)
		if err != nil {
			return "", false, err
		}
		return sized(t, n), false, nil

	case NChar:
		n, err := requiredSize(t, a.Size, maxSizeUnicode)
		if err != nil {
			return "", false, err
		}
		return sized(t, n), false, nil

	case NVarChar:
		return optionalSize(t, a.Size, maxSizeUnicode)

	case VarChar, VarBinary:
		return optionalSize(t, a.Size, maxSizeByte)

	case DateTime2, DateTimeOffset, Time:
		if a.Precision == nil {
			return t.String(), false, nil
		}
		if *a.Precision > maxFraction {
			return "", false, &RangeError{Type: t, Param: "precision", Value: *a.Precision, Limit: maxFraction}
		}
		return sized(t, *a.Precision), false, nil

	case Decimal:
		if a.Precision == nil || a.Scale == nil {
			return "", false, fmt.Errorf("%w: precision and scale must be specified for %q columns", ErrMissingAttribute, t)
		}
		p, s := *a.Precision, *a.Scale
		if p > maxDecimal {
			return "", false, &RangeError{Type: t, Param: "precision", Value: p, Limit: maxDecimal}
		}
		if s > p {
			return "", false, &RangeError{Type: t, Param: "scale", Value: s, Limit: p, Reason: "scale must not exceed precision"}
		}
		return "decimal(" + strconv.Itoa(p) + "," + strconv.Itoa(s) + ")", false, nil

	case Float:
		if a.Precision == nil {
			return "", false, fmt.Errorf("%w: precision must be specified for %q columns", ErrMissingAttribute, t)
		}
		if *a.Precision > maxFloat {
			return "", false, &RangeError{Type: t, Param: "precision", Value: *a.Precision, Limit: maxFloat}
		}
		return sized(t, *a.Precision), false, nil

	case Udt:
		if a.UDTSchema == nil || *a.UDTSchema == "" {
			return "", false, fmt.Errorf("%w: udt schema must be non-empty for %q columns", ErrMissingAttribute, t)
		}
		if a.UDTType == nil || *a.UDTType == "" {
			return "", false, fmt.Errorf("%w: udt type must be non-empty for %q columns", ErrMissingAttribute, t)
		}
		return QuoteIdent(*a.UDTSchema) + "." + QuoteIdent(*a.UDTType), false, nil

	case Xml:
		return renderXML(a, defaultSchema)

	case Structured:
		return "", false, fmt.Errorf("%w: %s columns describe nested row sets", ErrUnsupportedType, t)

	case Timestamp:
		return "", false, fmt.Errorf("%w: %s (rowversion) columns are not settable", ErrUnsupportedType, t)
	}
	return "", false, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

func renderXML(a Attrs, defaultSchema string) (string, bool, error) {
	if a.XMLName == nil {
		if a.XMLDatabase != nil || a.XMLOwningSchema != nil {
			return "", false, fmt.Errorf("%w: xml database and owning schema require a schema collection name", ErrInvalidQualifier)
		}
		return "xml", false, nil
	}
	if *a.XMLName == "" {
		return "", false, fmt.Errorf("%w: xml schema collection name must be non-empty", ErrInvalidQualifier)
	}
	if a.XMLDatabase != nil && *a.XMLDatabase == "" {
		return "", false, fmt.Errorf("%w: xml schema collection database must be non-empty", ErrInvalidQualifier)
	}
	if a.XMLOwningSchema != nil && *a.XMLOwningSchema == "" {
		return "", false, fmt.Errorf("%w: xml schema collection owning schema must be non-empty", ErrInvalidQualifier)
	}

	owner := defaultSchema
	if a.XMLOwningSchema != nil {
		owner = *a.XMLOwningSchema
	}
	parts := make([]string, 0, 3)
	if a.XMLDatabase != nil {
		parts = append(parts, QuoteIdent(*a.XMLDatabase))
	}
	parts = append(parts, QuoteIdent(owner), QuoteIdent(*a.XMLName))
	return "xml(" + strings.Join(parts, ".") + ")", false, nil
}

func requiredSize(t Type, size *int, limit int) (int, error) {
	if size == nil {
		return 0, fmt.Errorf("%w: size must be specified for %q columns", ErrMissingAttribute, t)
	}
	if *size > limit {
		return 0, &RangeError{Type: t, Param: "size", Value: *size, Limit: limit}
	}
	return *size, nil
}

func optionalSize(t Type, size *int, limit int) (string, bool, error) {
	if size == nil {
		return t.String() + "(max)", true, nil
	}
	if *size > limit {
		return "", false, &RangeError{Type: t, Param: "size", Value: *size, Limit: limit}
	}
	return sized(t, *size), false, nil
}

func sized(t Type, n int) string {
	return t.String() + "(" + strconv.Itoa(n) + ")"
}

// QuoteIdent brackets a SQL Server identifier, doubling any closing bracket.
func QuoteIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
