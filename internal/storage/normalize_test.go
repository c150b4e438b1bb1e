package storage

import (
	"testing"
	"time"
)

// TestNormalizeValue pins the canonical forms key comparison depends on. If
// any of these change, committed key sets and incoming keys stop matching.
func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "int", in: 42, want: "42"},
		{name: "int64", in: int64(42), want: "42"},
		{name: "float_whole", in: float64(1), want: "1"},
		{name: "float_fraction", in: 2.50, want: "2.5"},
		{name: "string_int", in: "42", want: "42"},
		{name: "string_float_trailing_zero", in: "1.0", want: "1"},
		{name: "string_thousands_separator", in: "1,234", want: "1234"},
		{name: "string_whitespace", in: "  AB-7  ", want: "AB-7"},
		{name: "bool_true", in: true, want: "true"},
		{name: "bool_spelling_yes", in: "Yes", want: "true"},
		{name: "bool_spelling_n", in: "n", want: "false"},
		{name: "bool_spelling_T", in: "T", want: "true"},
		{name: "digit_stays_numeric", in: "1", want: "1"},
		{name: "date_iso", in: "2024-03-05", want: "2024-03-05"},
		{name: "date_slash", in: "2024/03/05", want: "2024-03-05"},
		{name: "date_us", in: "03/05/2024", want: "2024-03-05"},
		{name: "date_rfc3339", in: "2024-03-05T10:30:00Z", want: "2024-03-05"},
		{name: "time_value", in: time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC), want: "2024-03-05"},
		{name: "bytes", in: []byte("7"), want: "7"},
		{name: "map_sorted_keys", in: map[string]any{"b": 2.0, "a": 1.0}, want: `{"a":1,"b":2}`},
		{name: "slice", in: []any{"x", 1.0}, want: `["x",1]`},
		{name: "plain_string", in: "Copenhagen", want: "Copenhagen"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeValue(tc.in); got != tc.want {
				t.Fatalf("NormalizeValue(%v)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// Mixed representations of the same key must normalize to the same string;
// this is what makes "1.0" in a batch match 1 in the destination.
func TestNormalizeValue_EquivalentForms(t *testing.T) {
	groups := [][]any{
		{1, int64(1), float64(1), "1", "1.0", " 1 "},
		{true, "true", "T", "yes", "Y"},
		{"2024-03-05", "2024/03/05", "2024-03-05T00:00:00Z"},
	}
	for _, g := range groups {
		want := NormalizeValue(g[0])
		for _, v := range g[1:] {
			if got := NormalizeValue(v); got != want {
				t.Fatalf("NormalizeValue(%v)=%q, want %q (same group as %v)", v, got, want, g[0])
			}
		}
	}
}

func TestIsNull(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, true},
		{"", true},
		{"   ", true},
		{"x", false},
		{0, false},
		{false, false},
	}
	for _, tc := range tests {
		if got := IsNull(tc.in); got != tc.want {
			t.Fatalf("IsNull(%v)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
