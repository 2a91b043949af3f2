package datasource

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/datasource/file"
	"bulkload/internal/datasource/httpds"
)

func TestNew(t *testing.T) {
	t.Parallel()

	s, err := New("", "nodes.jsonl", httpds.Config{})
	require.NoError(t, err)
	assert.IsType(t, &file.Local{}, s)

	s, err = New("http", "http://example.invalid/nodes.jsonl", httpds.Config{})
	require.NoError(t, err)
	require.IsType(t, &httpds.Source{}, s)
	assert.Equal(t, "http://example.invalid/nodes.jsonl", s.(*httpds.Source).URL())

	_, err = New("ftp", "x", httpds.Config{})
	assert.EqualError(t, err, "unsupported source.kind=ftp")
}

func TestLookupEncoding(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "UTF-8", " utf8 "} {
		enc, err := LookupEncoding(name)
		require.NoError(t, err, name)
		assert.Nil(t, enc, name)
	}

	enc, err := LookupEncoding("windows-1252")
	require.NoError(t, err)
	assert.NotNil(t, enc)

	_, err = LookupEncoding("klingon-8")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	// "café" in ISO-8859-1.
	raw := io.NopCloser(strings.NewReader("caf\xe9"))
	rc, err := Decode(raw, "ISO-8859-1")
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "café", string(b))
}

func TestDecodeUTF8Passthrough(t *testing.T) {
	t.Parallel()

	raw := io.NopCloser(strings.NewReader("plain"))
	rc, err := Decode(raw, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, raw, rc)
}
