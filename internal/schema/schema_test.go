package schema

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/bulk"
)

func TestNamesListsBuiltins(t *testing.T) {
	t.Parallel()

	names := Names()
	for _, want := range []string{"key_value", "language", "node", "property_data"} {
		assert.Contains(t, names, want)
	}
	assert.True(t, sortedStrings(names), "Names() = %v, want sorted", names)
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	err := Register[Node]("node")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"node" already registered`)
}

// TestModelsDescribe builds the column descriptors of every built-in model;
// a bad tag would fail here rather than at load time.
func TestModelsDescribe(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		m, ok := Lookup(name)
		require.True(t, ok, name)

		c, err := m.Open(strings.NewReader(""))
		require.NoError(t, err, name)
		cols, err := c.Columns()
		require.NoError(t, err, name)
		assert.NotEmpty(t, cols, name)
		require.NoError(t, c.Close())
	}
}

func TestNodeColumns(t *testing.T) {
	t.Parallel()

	m, _ := Lookup("node")
	c, err := m.Open(strings.NewReader(""))
	require.NoError(t, err)
	defer c.Close()

	cols, err := c.Columns()
	require.NoError(t, err)
	got := map[string]string{}
	for _, col := range cols {
		got[col.Name] = col.TypeName
	}
	assert.Equal(t, "uniqueidentifier", got["uniqueId"])
	assert.Equal(t, "smallint", got["level"])
	assert.Equal(t, "nvarchar(150)", got["path"])
	assert.Equal(t, "datetime", got["createDate"])
	assert.Equal(t, "bit", got["trashed"])

	schema, table := c.Schema()
	assert.Equal(t, "dbo", schema)
	assert.Equal(t, "umbracoNode", table)
}

func TestOpenDecodesJSONL(t *testing.T) {
	t.Parallel()

	in := `{"id":1,"uniqueId":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","parentId":-1,"level":1,"path":"-1,1","sortOrder":0,"trashed":false,"text":"Home","createDate":"2024-03-09T10:00:00Z"}
{"id":2,"uniqueId":"6ba7b811-9dad-11d1-80b4-00c04fd430c8","parentId":1,"level":2,"path":"-1,1,2","sortOrder":1,"trashed":true,"createDate":"2024-03-10T10:00:00Z"}
`
	m, _ := Lookup("node")
	c, err := m.Open(strings.NewReader(in))
	require.NoError(t, err)
	defer c.Close()

	textIdx, err := c.ColumnOrdinal("text")
	require.NoError(t, err)
	uidIdx, err := c.ColumnOrdinal("uniqueId")
	require.NoError(t, err)
	dateIdx, err := c.ColumnOrdinal("createDate")
	require.NoError(t, err)

	require.True(t, c.Advance())
	v, err := c.CurrentValue(textIdx)
	require.NoError(t, err)
	assert.Equal(t, "Home", v)
	v, err = c.CurrentValue(uidIdx)
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), v)
	v, err = c.CurrentValue(dateIdx)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC).Equal(v.(time.Time)))

	require.True(t, c.Advance())
	null, err := c.IsNull(textIdx)
	require.NoError(t, err)
	assert.True(t, null)

	assert.False(t, c.Advance())
	require.NoError(t, c.Err())
	assert.Equal(t, int64(2), c.RowsRead())
}

func TestDecodeJSONLErrors(t *testing.T) {
	t.Parallel()

	in := `{"key":"a","updated":"2024-01-01T00:00:00Z"}
{"key":"b","bogus":1}
`
	var keys []string
	var gotErr error
	for rec, err := range DecodeJSONL[KeyValue](strings.NewReader(in)) {
		if err != nil {
			gotErr = err
			break
		}
		keys = append(keys, rec.Key)
	}
	assert.Equal(t, []string{"a"}, keys)
	require.Error(t, gotErr)
	assert.True(t, strings.HasPrefix(gotErr.Error(), "record 2:"), gotErr.Error())
}

func TestOpenSurfacesDecodeError(t *testing.T) {
	t.Parallel()

	m, _ := Lookup("language")
	c, err := m.Open(strings.NewReader(`{"id":1}` + "\n" + `{"id":`))
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Advance())
	assert.False(t, c.Advance())
	require.Error(t, c.Err())
	assert.False(t, errors.Is(c.Err(), bulk.ErrClosed))
}

func TestDecodeJSONLArray(t *testing.T) {
	t.Parallel()

	in := "\n  [\n" + `{"key":"a","updated":"2024-01-01T00:00:00Z"},` + "\n" + `{"key":"b","updated":"2024-01-02T00:00:00Z"}` + "\n]\n"
	var keys []string
	for rec, err := range DecodeJSONL[KeyValue](strings.NewReader(in)) {
		require.NoError(t, err)
		keys = append(keys, rec.Key)
	}
	assert.Equal(t, []string{"a", "b"}, keys)

	var gotErr error
	for _, err := range DecodeJSONL[KeyValue](strings.NewReader(`[{"key":"a","updated":"2024-01-01T00:00:00Z"}, {"key":`)) {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.True(t, strings.HasPrefix(gotErr.Error(), "record 2:"), gotErr.Error())
}

func TestDecodeJSONLEmpty(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "  \n", "[]"} {
		n := 0
		for _, err := range DecodeJSONL[KeyValue](strings.NewReader(in)) {
			require.NoError(t, err, "input %q", in)
			n++
		}
		assert.Zero(t, n, "input %q", in)
	}
}
