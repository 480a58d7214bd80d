package models

import (
	"testing"
	"time"
)

func TestNormalizeVatIdentity(t *testing.T) {
	cases := []struct {
		name        string
		countryCode string
		vatId       string
		wantCC      string
		wantVat     string
	}{
		{"already clean", "DE", "DE123456789", "DE", "DE123456789"},
		{"lowercase country", "de", "123456789", "DE", "123456789"},
		{"country with spaces", " fr ", "12345678901", "FR", "12345678901"},
		{"dots and slashes stripped", "DE", "de 123.456/789", "DE", "DE123456789"},
		{"dashes stripped", "AT", "ATU-1234-5678", "AT", "ATU12345678"},
		{"empty vat id", "DE", "", "DE", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cc, vid := NormalizeVatIdentity(tc.countryCode, tc.vatId)
			if cc != tc.wantCC || vid != tc.wantVat {
				t.Errorf("NormalizeVatIdentity(%q, %q) = (%q, %q), want (%q, %q)",
					tc.countryCode, tc.vatId, cc, vid, tc.wantCC, tc.wantVat)
			}
		})
	}
}

func TestIsValidationStale(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if !IsValidationStale(nil, now) {
		t.Error("never-checked identity should be stale")
	}

	fresh := now.Add(-24 * time.Hour)
	if IsValidationStale(&fresh, now) {
		t.Error("checked yesterday should not be stale")
	}

	edge := now.Add(-ValidationStaleAfter + time.Minute)
	if IsValidationStale(&edge, now) {
		t.Error("checked just inside the window should not be stale")
	}

	old := now.Add(-ValidationStaleAfter - time.Minute)
	if !IsValidationStale(&old, now) {
		t.Error("checked beyond the window should be stale")
	}
}
