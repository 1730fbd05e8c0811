package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RowHash computes the content hash the replication engine stores next to
// each mirrored row: SHA-256 over a canonical JSON object of the row's
// tracked fields (the id is never included by the caller).
//
// Canonical form: keys sorted ascending, no whitespace, every value rendered
// through stringifyValue so that the same upstream content always produces
// the same bytes regardless of driver-level type variation.
func RowHash(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		v := fields[k]
		if v == nil {
			b.WriteString("null")
		} else {
			b.WriteString(strconv.Quote(stringifyValue(v)))
		}
	}
	b.WriteByte('}')

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// stringifyValue renders a scanned database value deterministically:
// ISO-8601 for dates and timestamps, a fixed decimal representation for
// fractional numbers, plain base-10 for integers.
func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 64)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case decimal.Decimal:
		return t.String()
	case *decimal.Decimal:
		if t == nil {
			return ""
		}
		return t.String()
	case time.Time:
		// Date-only values come back at midnight UTC; render them without
		// the zero time component so a DATE column hashes the same way the
		// upstream source formats it.
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02T15:04:05")
	case []byte:
		return string(t)
	}
	return strconvAny(v)
}

func strconvAny(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return ""
}
