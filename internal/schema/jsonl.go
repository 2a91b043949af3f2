package schema

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"

	json "github.com/goccy/go-json"
)

// DecodeJSONL yields one T per JSON value in r. Values are usually one per
// line but any whitespace separation is accepted, and a stream whose first
// token is '[' is read as one array of records. A decode error is yielded
// once, with the 1-based record number, and ends the sequence.
func DecodeJSONL[T any](r io.Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		br := bufio.NewReader(r)
		array, err := startsArray(br)
		if err != nil {
			var zero T
			yield(zero, fmt.Errorf("record 1: %w", err))
			return
		}

		dec := json.NewDecoder(br)
		dec.DisallowUnknownFields()
		if array {
			if _, err := dec.Token(); err != nil {
				var zero T
				yield(zero, fmt.Errorf("record 1: %w", err))
				return
			}
		}
		for n := 1; ; n++ {
			if array && !dec.More() {
				if _, err := dec.Token(); err != nil {
					var zero T
					yield(zero, fmt.Errorf("record %d: closing array: %w", n, err))
				}
				return
			}
			var rec T
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) && !array {
				return
			}
			if err != nil {
				var zero T
				yield(zero, fmt.Errorf("record %d: %w", n, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// startsArray reports whether the first non-space byte of br is '['. It
// consumes only the leading whitespace.
func startsArray(br *bufio.Reader) (bool, error) {
	for {
		b, err := br.Peek(1)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		case '[':
			return true, nil
		default:
			return false, nil
		}
	}
}
