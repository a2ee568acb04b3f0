// Package pricing holds the money primitives and the pure strategy algebra
// of the sniper: fixed-point price math, listing/activity parsing, selector
// matching and the offer/order/sell price evaluators.
//
// Everything in this package is side-effect free; the engine composes these
// functions inside its polling cycle.
package pricing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceStep is the marketplace tick: all prices move in 0.01 increments.
var PriceStep = decimal.NewFromFloat(0.01)

// Quantize2 truncates a price to two fractional digits toward zero.
// This is the only rounding mode the marketplace accepts.
func Quantize2(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}

// FormatPrice renders a price as the quantized 2-decimal string the wire
// expects, e.g. "0.80", "12.50".
func FormatPrice(d decimal.Decimal) string {
	return Quantize2(d).StringFixed(2)
}

// ParseDecimal converts an arbitrary JSON value (string, float64,
// json.Number, int) into a decimal. Returns nil when the value is absent or
// does not parse.
func ParseDecimal(v any) *decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return &x
	case float64:
		d := decimal.NewFromFloat(x)
		return &d
	case int:
		d := decimal.NewFromInt(int64(x))
		return &d
	case int64:
		d := decimal.NewFromInt(x)
		return &d
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return nil
		}
		return &d
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}

const millisThreshold = 10_000_000_000

// ParseUnixTs accepts unix seconds, unix milliseconds (anything above 10^10),
// digit strings, and ISO-8601 timestamps with or without fractional seconds.
// Returns seconds since epoch, or 0 when the value cannot be interpreted.
func ParseUnixTs(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return normalizeTs(int64(x))
	case int:
		return normalizeTs(int64(x))
	case int64:
		return normalizeTs(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return normalizeTs(i)
		}
		if f, err := x.Float64(); err == nil {
			return normalizeTs(int64(f))
		}
		return 0
	case string:
		return parseTsString(strings.TrimSpace(x))
	default:
		return 0
	}
}

func normalizeTs(ts int64) int64 {
	if ts > millisThreshold {
		return ts / 1000
	}
	return ts
}

func parseTsString(s string) int64 {
	if s == "" {
		return 0
	}
	if isDigits(s) {
		var ts int64
		for _, c := range s {
			ts = ts*10 + int64(c-'0')
		}
		return normalizeTs(ts)
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000000Z",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// NowTs returns the current wall-clock time in unix seconds.
func NowTs() int64 {
	return time.Now().Unix()
}

// FormatIsoZ renders unix seconds as an ISO-8601 UTC timestamp with a Z
// suffix. ParseUnixTs(FormatIsoZ(t)) == t for whole seconds.
func FormatIsoZ(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05Z")
}
