package bulk

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"bulkload/internal/wiretype"
)

// TypeMapper resolves the wire type of a record column that carries no custom
// type tag.
type TypeMapper interface {
	// MapGeneric maps a declared generic type name (the `type=` tag option).
	MapGeneric(name string) (wiretype.Type, error)
	// MapGoType maps the Go type of the record field.
	MapGoType(rt reflect.Type) (wiretype.Type, error)
}

// SQLServerTypes is the default TypeMapper.
type SQLServerTypes struct{}

// MapGeneric accepts portable type names:
//
//	"int", "int32", "integer"           -> int
//	"bigint", "int64"                   -> bigint
//	"smallint", "int16"                 -> smallint
//	"byte", "tinyint"                   -> tinyint
//	"bool", "boolean"                   -> bit
//	"string"                            -> nvarchar
//	"ansistring"                        -> varchar
//	"stringfixedlength"                 -> nchar
//	"ansistringfixedlength"             -> char
//	"binary", "bytes"                   -> varbinary
//	"date"                              -> date
//	"time"                              -> time
//	"datetime"                          -> datetime
//	"timestamp", "datetime2"            -> datetime2
//	"timestamptz", "datetimeoffset"     -> datetimeoffset
//	"numeric", "decimal", "varnumeric"  -> decimal
//	"currency"                          -> money
//	"double"                            -> float
//	"single"                            -> real
//	"uuid", "guid"                      -> uniqueidentifier
//	"object"                            -> sql_variant
//	"xml"                               -> xml
//
// Any engine type name known to wiretype.Parse is accepted as is. Unknown
// names are an error.
func (SQLServerTypes) MapGeneric(name string) (wiretype.Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int", "int32", "integer":
		return wiretype.Int, nil
	case "bigint", "int64":
		return wiretype.BigInt, nil
	case "smallint", "int16":
		return wiretype.SmallInt, nil
	case "byte", "tinyint":
		return wiretype.TinyInt, nil
	case "bool", "boolean":
		return wiretype.Bit, nil
	case "string":
		return wiretype.NVarChar, nil
	case "ansistring":
		return wiretype.VarChar, nil
	case "stringfixedlength":
		return wiretype.NChar, nil
	case "ansistringfixedlength":
		return wiretype.Char, nil
	case "binary", "bytes":
		return wiretype.VarBinary, nil
	case "timestamp", "datetime2":
		return wiretype.DateTime2, nil
	case "timestamptz", "datetimeoffset":
		return wiretype.DateTimeOffset, nil
	case "numeric", "decimal", "varnumeric":
		return wiretype.Decimal, nil
	case "currency":
		return wiretype.Money, nil
	case "double":
		return wiretype.Float, nil
	case "single":
		return wiretype.Real, nil
	case "uuid", "guid":
		return wiretype.UniqueIdentifier, nil
	case "object":
		return wiretype.Variant, nil
	}
	if t, ok := wiretype.Parse(name); ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: generic type %q", wiretype.ErrUnsupportedType, name)
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	dateType  = reflect.TypeOf(civil.Date{})
	clockType = reflect.TypeOf(civil.Time{})
	uuidType  = reflect.TypeOf(uuid.UUID{})
)

// MapGoType maps Go field types. Pointers map like their element type.
// time.Time maps to datetime2 so no precision is lost; unsigned 64-bit
// integers have no lossless engine type and are rejected.
func (SQLServerTypes) MapGoType(rt reflect.Type) (wiretype.Type, error) {
	if rt == nil {
		return 0, fmt.Errorf("%w: nil Go type", wiretype.ErrUnsupportedType)
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	switch rt {
	case timeType:
		return wiretype.DateTime2, nil
	case dateType:
		return wiretype.Date, nil
	case clockType:
		return wiretype.Time, nil
	case uuidType:
		return wiretype.UniqueIdentifier, nil
	}

	switch rt.Kind() {
	case reflect.Bool:
		return wiretype.Bit, nil
	case reflect.String:
		return wiretype.NVarChar, nil
	case reflect.Uint8:
		return wiretype.TinyInt, nil
	case reflect.Int8, reflect.Int16:
		return wiretype.SmallInt, nil
	case reflect.Uint16, reflect.Int32:
		return wiretype.Int, nil
	case reflect.Uint32, reflect.Int, reflect.Int64:
		return wiretype.BigInt, nil
	case reflect.Float32:
		return wiretype.Real, nil
	case reflect.Float64:
		return wiretype.Float, nil
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			return wiretype.VarBinary, nil
		}
	case reflect.Interface:
		return wiretype.Variant, nil
	}
	return 0, fmt.Errorf("%w: Go type %s", wiretype.ErrUnsupportedType, rt)
}

// customTypes is the fixed custom type tag table.
var customTypes = map[string]wiretype.Type{
	"ntext":       wiretype.NText,
	"nchar":       wiretype.NChar,
	"nvarcharmax": wiretype.NVarChar,
}

// CustomType resolves a custom type tag, case-insensitively.
func CustomType(tag string) (wiretype.Type, error) {
	t, ok := customTypes[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCustomType, tag)
	}
	return t, nil
}
