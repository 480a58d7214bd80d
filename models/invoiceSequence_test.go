package models

import "testing"

func TestNormalizeInvoicePrefix(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"INV", "INV"},
		{"INV-", "INV"},
		{"INV--", "INV"},
		{"INV_", "INV"},
		{"INV/ ", "INV"},
		{"  RE-2026- ", "RE-2026"},
		{"", "INV"},
		{"   ", "INV"},
		{"-", "INV"},
	}
	for _, tc := range cases {
		if got := NormalizeInvoicePrefix(tc.input); got != tc.want {
			t.Errorf("NormalizeInvoicePrefix(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestFormatInvoiceNumber(t *testing.T) {
	cases := []struct {
		prefix string
		year   int
		number int
		want   string
	}{
		{"INV", 2026, 1, "INV-2026-000001"},
		{"INV", 2026, 42, "INV-2026-000042"},
		{"RE", 2025, 999999, "RE-2025-999999"},
		{"RE", 2025, 1000000, "RE-2025-1000000"},
	}
	for _, tc := range cases {
		if got := FormatInvoiceNumber(tc.prefix, tc.year, tc.number); got != tc.want {
			t.Errorf("FormatInvoiceNumber(%q, %d, %d) = %q, want %q", tc.prefix, tc.year, tc.number, got, tc.want)
		}
	}
}
