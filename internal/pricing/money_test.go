package pricing

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuantize2TruncatesTowardZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0.999", "0.99"},
		{"0.991", "0.99"},
		{"1.005", "1"},
		{"12.3456", "12.34"},
		{"5", "5"},
		{"0.1", "0.1"},
	}
	for _, tt := range tests {
		in, _ := decimal.NewFromString(tt.in)
		if got := Quantize2(in).String(); got != tt.want {
			t.Errorf("Quantize2(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0.8", "0.80"},
		{"12.5", "12.50"},
		{"0.999", "0.99"},
		{"3", "3.00"},
	}
	for _, tt := range tests {
		in, _ := decimal.NewFromString(tt.in)
		if got := FormatPrice(in); got != tt.want {
			t.Errorf("FormatPrice(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string // "" means nil expected
	}{
		{"string", "1.23", "1.23"},
		{"padded string", "  4.50 ", "4.5"},
		{"empty string", "", ""},
		{"garbage string", "n/a", ""},
		{"json number", json.Number("0.85"), "0.85"},
		{"float", 2.5, "2.5"},
		{"int", 7, "7"},
		{"nil", nil, ""},
		{"bool", true, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseDecimal(tt.in)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("ParseDecimal(%v) = %s, want nil", tt.in, got)
				}
				return
			}
			if got == nil || got.String() != tt.want {
				t.Fatalf("ParseDecimal(%v) = %v, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseUnixTs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"seconds", int64(1700000000), 1700000000},
		{"millis", int64(1700000000123), 1700000000},
		{"json number seconds", json.Number("1700000000"), 1700000000},
		{"digit string millis", "1700000000123", 1700000000},
		{"rfc3339", "2023-11-14T22:13:20Z", 1700000000},
		{"fractional", "2023-11-14T22:13:20.500000Z", 1700000000},
		{"no zone", "2023-11-14T22:13:20", 1700000000},
		{"garbage", "yesterday", 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseUnixTs(tt.in); got != tt.want {
				t.Fatalf("ParseUnixTs(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatIsoZRoundTrip(t *testing.T) {
	t.Parallel()

	for _, ts := range []int64{0, 1, 1700000000, 2000000000, NowTs()} {
		if got := ParseUnixTs(FormatIsoZ(ts)); got != ts {
			t.Errorf("round trip %d -> %s -> %d", ts, FormatIsoZ(ts), got)
		}
	}
}
