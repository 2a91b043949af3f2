package schema

import (
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectCSV[T any](t *testing.T, in string, opt CSVOptions) ([]T, error) {
	t.Helper()
	var out []T
	for rec, err := range DecodeCSV[T](strings.NewReader(in), opt) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func TestDecodeCSVNodes(t *testing.T) {
	t.Parallel()

	in := "\uFEFFid; UniqueID ;parentId;level;path;sortOrder;trashed;text;Created\n" +
		"1;6ba7b810-9dad-11d1-80b4-00c04fd430c8;-1;1;-1,1;0;ne; Home ;09.03.2024\n" +
		"2;6ba7b811-9dad-11d1-80b4-00c04fd430c8;1;2;-1,1,2;1.0;ano;;2024-03-10T10:00:00Z\n"

	nodes, err := collectCSV[Node](t, in, CSVOptions{
		Comma:     ';',
		HeaderMap: map[string]string{"Created": "createDate"},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	n := nodes[0]
	assert.Equal(t, int32(1), n.ID)
	assert.Equal(t, uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), n.UniqueID)
	assert.Equal(t, int32(-1), n.ParentID)
	assert.Equal(t, "-1,1", n.Path)
	assert.False(t, n.Trashed)
	require.NotNil(t, n.Text)
	assert.Equal(t, "Home", *n.Text)
	assert.Nil(t, n.NodeUser)
	assert.True(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC).Equal(n.CreateDate))

	n = nodes[1]
	assert.Equal(t, int32(1), n.SortOrder)
	assert.True(t, n.Trashed)
	assert.Nil(t, n.Text)
	assert.True(t, time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC).Equal(n.CreateDate))
}

func TestDecodeCSVOptions(t *testing.T) {
	t.Parallel()

	in := "languageISOCode,isDefaultVariantLang,mandatory,comment\n" +
		"en-US,  Y  ,N,first\n"

	_, err := collectCSV[Language](t, in, CSVOptions{})
	assert.ErrorContains(t, err, `csv header "comment" matches no column of umbracoLanguage`)

	langs, err := collectCSV[Language](t, in, CSVOptions{SkipUnknown: true, Truthy: []string{"Y"}, Falsy: []string{"N"}})
	require.NoError(t, err)
	require.Len(t, langs, 1)
	assert.True(t, langs[0].IsDefault)
	assert.False(t, langs[0].Mandatory)

	_, err = collectCSV[Language](t, "mandatory\n  x\n", CSVOptions{KeepSpace: true})
	assert.ErrorContains(t, err, `record 1: column mandatory: cannot parse "  x" as a boolean`)
}

func TestDecodeCSVErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty non-nullable", "id,mandatory\n1,\n", "record 1: column mandatory: empty value"},
		{"overflow", "id\n1\n40000\n", "record 2: column id: 40000 overflows int16"},
		{"not an int", "id\n1.5\n", `record 1: column id: cannot parse "1.5" as an integer`},
		{"duplicate header", "id,ID\n", "maps to column id twice"},
		{"field count", "id,mandatory\n1,true\n2\n", "record 2:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := collectCSV[Language](t, tt.in, CSVOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := collectCSV[Language](t, "id,mandatory\n1,true\n2\n", CSVOptions{})
	assert.True(t, errors.Is(err, csv.ErrFieldCount), err)
}

func TestDecodeCSVEmpty(t *testing.T) {
	t.Parallel()

	recs, err := collectCSV[Language](t, "", CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestOpenCSVThroughCursor(t *testing.T) {
	t.Parallel()

	m, _ := Lookup("property_data")
	c, err := m.OpenCSV(strings.NewReader("id,versionId,propertyTypeId,decimalValue,textValue\n7,3,12,12.50,hello\n"), CSVOptions{})
	require.NoError(t, err)
	defer c.Close()

	dec, err := c.ColumnOrdinal("decimalValue")
	require.NoError(t, err)
	seg, err := c.ColumnOrdinal("segment")
	require.NoError(t, err)

	require.True(t, c.Advance())
	v, err := c.CurrentValue(dec)
	require.NoError(t, err)
	assert.Equal(t, "12.50", v)
	null, err := c.IsNull(seg)
	require.NoError(t, err)
	assert.True(t, null)
	assert.False(t, c.Advance())
	require.NoError(t, c.Err())
}
