// Package wiretype is the catalog of SQL Server wire types understood by the
// bulk-load path.
//
// For every wire type it records:
//
//   - the native Go type a value must have when handed to the transport,
//   - the closed set of optional attributes (size, precision, scale, UDT and
//     XML schema-collection qualifiers) a column of that type accepts,
//   - how the canonical type text (e.g. "decimal(38,6)", "nvarchar(max)") is
//     rendered, including the engine's bounds checks.
//
// The package holds only immutable tables and pure functions, so it is safe
// for concurrent use by any number of readers.
package wiretype

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
)

// Type enumerates the engine's column types.
type Type int

// Zero is deliberately not a valid Type so an unset field is caught.
const (
	BigInt Type = iota + 1
	Binary
	Bit
	Char
	Date
	DateTime
	DateTime2
	DateTimeOffset
	Decimal
	Float
	Image
	Int
	Money
	NChar
	NText
	NVarChar
	Real
	SmallDateTime
	SmallInt
	SmallMoney
	Structured
	Text
	Time
	Timestamp
	TinyInt
	Udt
	UniqueIdentifier
	VarBinary
	VarChar
	Variant
	Xml
)

var names = map[Type]string{
	BigInt:           "bigint",
	Binary:           "binary",
	Bit:              "bit",
	Char:             "char",
	Date:             "date",
	DateTime:         "datetime",
	DateTime2:        "datetime2",
	DateTimeOffset:   "datetimeoffset",
	Decimal:          "decimal",
	Float:            "float",
	Image:            "image",
	Int:              "int",
	Money:            "money",
	NChar:            "nchar",
	NText:            "ntext",
	NVarChar:         "nvarchar",
	Real:             "real",
	SmallDateTime:    "smalldatetime",
	SmallInt:         "smallint",
	SmallMoney:       "smallmoney",
	Structured:       "structured",
	Text:             "text",
	Time:             "time",
	Timestamp:        "timestamp",
	TinyInt:          "tinyint",
	Udt:              "udt",
	UniqueIdentifier: "uniqueidentifier",
	VarBinary:        "varbinary",
	VarChar:          "varchar",
	Variant:          "sql_variant",
	Xml:              "xml",
}

var byName = func() map[string]Type {
	m := make(map[string]Type, len(names))
	for t, n := range names {
		m[n] = t
	}
	m["variant"] = Variant
	return m
}()

// String returns the engine's lower-case name for t.
func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t is a member of the catalog.
func (t Type) Known() bool {
	_, ok := names[t]
	return ok
}

// Parse maps an engine type name (case-insensitive, surrounding space
// ignored) to its Type.
func Parse(name string) (Type, bool) {
	t, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Attr is a bitset of optional column attributes.
type Attr uint8

const (
	AttrSize Attr = 1 << iota
	AttrPrecision
	AttrScale
	// AttrUDT covers both parts of the UDT qualifier.
	AttrUDT
	AttrXMLDatabase
	AttrXMLOwningSchema
	AttrXMLName
)

// Has reports whether every bit of o is set in a.
func (a Attr) Has(o Attr) bool { return a&o == o }

func (a Attr) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	for _, p := range []struct {
		bit  Attr
		name string
	}{
		{AttrSize, "size"},
		{AttrPrecision, "precision"},
		{AttrScale, "scale"},
		{AttrUDT, "udt"},
		{AttrXMLDatabase, "xml_database"},
		{AttrXMLOwningSchema, "xml_owning_schema"},
		{AttrXMLName, "xml_name"},
	} {
		if a.Has(p.bit) {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "|")
}

var allowed = map[Type]Attr{
	BigInt:           0,
	Binary:           AttrSize,
	Bit:              0,
	Char:             AttrSize,
	Date:             0,
	DateTime:         0,
	DateTime2:        AttrPrecision,
	DateTimeOffset:   AttrPrecision,
	Decimal:          AttrPrecision | AttrScale,
	Float:            AttrPrecision | AttrScale,
	Image:            0,
	Int:              0,
	Money:            0,
	NChar:            AttrSize,
	NText:            0,
	NVarChar:         AttrSize,
	Real:             0,
	SmallDateTime:    0,
	SmallInt:         0,
	SmallMoney:       0,
	Structured:       0,
	Text:             0,
	Time:             AttrPrecision,
	Timestamp:        0,
	TinyInt:          0,
	Udt:              AttrUDT,
	UniqueIdentifier: 0,
	VarBinary:        AttrSize,
	VarChar:          AttrSize,
	Variant:          0,
	Xml:              AttrXMLDatabase | AttrXMLOwningSchema | AttrXMLName,
}

// Allowed returns the optional attributes a column of type t may carry.
func Allowed(t Type) (Attr, bool) {
	a, ok := allowed[t]
	return a, ok
}

var (
	typeBytes = reflect.TypeOf([]byte(nil))
	typeAny   = reflect.TypeOf((*any)(nil)).Elem()
)

// Decimal, money and smallmoney travel as their canonical decimal text so no
// precision is lost on the way to the transport.
var native = map[Type]reflect.Type{
	BigInt:           reflect.TypeOf(int64(0)),
	Binary:           typeBytes,
	Bit:              reflect.TypeOf(false),
	Char:             reflect.TypeOf(""),
	Date:             reflect.TypeOf(civil.Date{}),
	DateTime:         reflect.TypeOf(time.Time{}),
	DateTime2:        reflect.TypeOf(time.Time{}),
	DateTimeOffset:   reflect.TypeOf(time.Time{}),
	Decimal:          reflect.TypeOf(""),
	Float:            reflect.TypeOf(float64(0)),
	Image:            typeBytes,
	Int:              reflect.TypeOf(int32(0)),
	Money:            reflect.TypeOf(""),
	NChar:            reflect.TypeOf(""),
	NText:            reflect.TypeOf(""),
	NVarChar:         reflect.TypeOf(""),
	Real:             reflect.TypeOf(float32(0)),
	SmallDateTime:    reflect.TypeOf(time.Time{}),
	SmallInt:         reflect.TypeOf(int16(0)),
	SmallMoney:       reflect.TypeOf(""),
	Structured:       typeAny,
	Text:             reflect.TypeOf(""),
	Time:             reflect.TypeOf(civil.Time{}),
	Timestamp:        typeBytes,
	TinyInt:          reflect.TypeOf(uint8(0)),
	Udt:              typeAny,
	UniqueIdentifier: reflect.TypeOf(uuid.UUID{}),
	VarBinary:        typeBytes,
	VarChar:          reflect.TypeOf(""),
	Variant:          typeAny,
	Xml:              reflect.TypeOf(""),
}

// NativeType returns the Go type that represents values of wire type t.
func NativeType(t Type) (reflect.Type, bool) {
	rt, ok := native[t]
	return rt, ok
}

// Types returns every catalogued type in declaration order.
func Types() []Type {
	out := make([]Type, 0, len(names))
	for t := BigInt; t <= Xml; t++ {
		out = append(out, t)
	}
	return out
}
