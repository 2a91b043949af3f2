// Package datasource opens the byte streams record models are decoded from.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"bulkload/internal/datasource/file"
	"bulkload/internal/datasource/httpds"
)

// Source opens a fresh stream on each call. The caller closes it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// New returns the source of the given kind. kind is "file" (location is a
// path) or "http" (location is a URL).
func New(kind, location string, hc httpds.Config) (Source, error) {
	switch kind {
	case "", "file":
		return file.NewLocal(location), nil
	case "http":
		return httpds.NewSource(location, hc), nil
	default:
		return nil, fmt.Errorf("unsupported source.kind=%s", kind)
	}
}

// LookupEncoding resolves an IANA charset name. It returns nil for UTF-8,
// which needs no decoding.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", name)
	}
	return enc, nil
}

// Decode wraps rc so reads yield UTF-8 decoded from charset.
func Decode(rc io.ReadCloser, charset string) (io.ReadCloser, error) {
	enc, err := LookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return rc, nil
	}
	return readCloser{Reader: transform.NewReader(rc, enc.NewDecoder()), Closer: rc}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
