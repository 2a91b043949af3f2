package mysql

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"bulkload/internal/bulk"
)

const nullField = `\N`

// writeTSV drains c into w in the LOAD DATA default text format: tab field
// separator, newline row terminator, backslash escapes and \N for NULL.
func writeTSV(ctx context.Context, w io.Writer, c *bulk.Cursor) error {
	n, err := c.FieldCount()
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(w, 64<<10)
	row := make([]any, n)
	var scratch []byte
	for c.Advance() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.Values(row); err != nil {
			return err
		}
		for i, v := range row {
			if i > 0 {
				_ = bw.WriteByte('\t')
			}
			scratch, err = appendField(scratch[:0], v)
			if err != nil {
				return fmt.Errorf("row %d column %d: %w", c.RowsRead(), i, err)
			}
			_, _ = bw.Write(scratch)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := c.Err(); err != nil {
		return fmt.Errorf("read row %d: %w", c.RowsRead(), err)
	}
	return bw.Flush()
}

func appendField(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(dst, nullField...), nil
	case string:
		return appendEscaped(dst, x), nil
	case []byte:
		return appendEscaped(dst, string(x)), nil
	case bool:
		if x {
			return append(dst, '1'), nil
		}
		return append(dst, '0'), nil
	case int64:
		return strconv.AppendInt(dst, x, 10), nil
	case int32:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case int16:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case uint8:
		return strconv.AppendUint(dst, uint64(x), 10), nil
	case float64:
		return strconv.AppendFloat(dst, x, 'g', -1, 64), nil
	case float32:
		return strconv.AppendFloat(dst, float64(x), 'g', -1, 32), nil
	case time.Time:
		return x.AppendFormat(dst, "2006-01-02 15:04:05.999999"), nil
	case civil.Date:
		return append(dst, x.String()...), nil
	case civil.Time:
		return append(dst, x.String()...), nil
	case civil.DateTime:
		return append(dst, x.String()...), nil
	case uuid.UUID:
		return append(dst, x.String()...), nil
	case fmt.Stringer:
		return appendEscaped(dst, x.String()), nil
	default:
		return dst, fmt.Errorf("unsupported value type %T", v)
	}
}

func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch b := s[i]; b {
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case 0:
			dst = append(dst, '\\', '0')
		default:
			dst = append(dst, b)
		}
	}
	return dst
}
