package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func statusPtr(s VatIdentityStatus) *VatIdentityStatus {
	return &s
}

func germanSeller() SellerProfile {
	return SellerProfile{
		CountryCode:    "DE",
		DefaultVatRate: decimal.RequireFromString("19.00"),
	}
}

func allPermissions() IssuerPermissions {
	return IssuerPermissions{CrossBorderB2B: true, ViesValidation: true}
}

func TestDecideVatTreatmentDomestic(t *testing.T) {
	// same country always wins, whatever the permissions say
	for _, perms := range []IssuerPermissions{{}, allPermissions()} {
		d := DecideVatTreatment(germanSeller(), BuyerProfile{CountryCode: "DE"}, perms)
		if d.Treatment != TaxTreatmentDomestic {
			t.Fatalf("treatment = %s, want DOMESTIC", d.Treatment)
		}
		if !d.Rate.Equal(decimal.RequireFromString("19.00")) {
			t.Errorf("rate = %s, want 19.00", d.Rate)
		}
		if d.Reason != "" {
			t.Errorf("reason = %q, want empty", d.Reason)
		}
	}
}

func TestDecideVatTreatmentReverseCharge(t *testing.T) {
	buyer := BuyerProfile{CountryCode: "FR", VatId: "FR12345678901"}
	d := DecideVatTreatment(germanSeller(), buyer, IssuerPermissions{CrossBorderB2B: true})
	if d.Treatment != TaxTreatmentEuB2bRc {
		t.Fatalf("treatment = %s, want EU_B2B_RC", d.Treatment)
	}
	if !d.Rate.IsZero() {
		t.Errorf("rate = %s, want 0", d.Rate)
	}
	if d.Reason != VatReasonReverseCharge {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestDecideVatTreatmentPendingStatusStillReverseCharges(t *testing.T) {
	// a not-yet-disproven status must not block cross-border automation
	for _, status := range []VatIdentityStatus{VatIdentityStatusPending, VatIdentityStatusUnknown, VatIdentityStatusValid} {
		buyer := BuyerProfile{CountryCode: "FR", VatId: "FR12345678901", VatStatus: statusPtr(status)}
		d := DecideVatTreatment(germanSeller(), buyer, allPermissions())
		if d.Treatment != TaxTreatmentEuB2bRc {
			t.Errorf("status %s: treatment = %s, want EU_B2B_RC", status, d.Treatment)
		}
	}
}

func TestDecideVatTreatmentInvalidWithViesFallsThroughToB2c(t *testing.T) {
	buyer := BuyerProfile{CountryCode: "FR", VatId: "FR12345678901", VatStatus: statusPtr(VatIdentityStatusInvalid)}
	d := DecideVatTreatment(germanSeller(), buyer, allPermissions())
	if d.Treatment != TaxTreatmentEuB2c {
		t.Fatalf("treatment = %s, want EU_B2C", d.Treatment)
	}
	if !d.Rate.Equal(decimal.RequireFromString("19.00")) {
		t.Errorf("rate = %s, want seller rate", d.Rate)
	}
}

func TestDecideVatTreatmentInvalidWithoutViesStillReverseCharges(t *testing.T) {
	// without the validation permission the invalid status is not trusted
	buyer := BuyerProfile{CountryCode: "FR", VatId: "FR12345678901", VatStatus: statusPtr(VatIdentityStatusInvalid)}
	d := DecideVatTreatment(germanSeller(), buyer, IssuerPermissions{CrossBorderB2B: true})
	if d.Treatment != TaxTreatmentEuB2bRc {
		t.Fatalf("treatment = %s, want EU_B2B_RC", d.Treatment)
	}
}

func TestDecideVatTreatmentEuConsumer(t *testing.T) {
	cases := []struct {
		name  string
		buyer BuyerProfile
		perms IssuerPermissions
	}{
		{"no vat id", BuyerProfile{CountryCode: "FR"}, allPermissions()},
		{"vat id but no permission", BuyerProfile{CountryCode: "FR", VatId: "FR12345678901"}, IssuerPermissions{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := DecideVatTreatment(germanSeller(), tc.buyer, tc.perms)
			if d.Treatment != TaxTreatmentEuB2c {
				t.Fatalf("treatment = %s, want EU_B2C", d.Treatment)
			}
			if !d.Rate.Equal(decimal.RequireFromString("19.00")) {
				t.Errorf("rate = %s, want 19.00", d.Rate)
			}
		})
	}
}

func TestDecideVatTreatmentNonEu(t *testing.T) {
	d := DecideVatTreatment(germanSeller(), BuyerProfile{CountryCode: "US"}, allPermissions())
	if d.Treatment != TaxTreatmentNonEu {
		t.Fatalf("treatment = %s, want NON_EU", d.Treatment)
	}
	if !d.Rate.IsZero() {
		t.Errorf("rate = %s, want 0", d.Rate)
	}
	if d.Reason != VatReasonOutsideEu {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestEffectiveVatRate(t *testing.T) {
	official := decimal.RequireFromString("21.00")
	override := decimal.RequireFromString("16.00")

	s := SellerProfile{DefaultVatRate: decimal.RequireFromString("19.00")}
	if got := s.EffectiveVatRate(); !got.Equal(decimal.RequireFromString("19.00")) {
		t.Errorf("default fallback = %s", got)
	}

	s.OfficialStandardRate = &official
	if got := s.EffectiveVatRate(); !got.Equal(official) {
		t.Errorf("official rate = %s", got)
	}

	s.VatOverrideEnabled = true
	s.VatOverrideRate = override
	if got := s.EffectiveVatRate(); !got.Equal(override) {
		t.Errorf("override rate = %s", got)
	}
}

func TestDecideVatTreatmentLowercaseCountryCodes(t *testing.T) {
	// stored rows may carry lowercase codes; the engine must not read them
	// as outside the EU
	d := DecideVatTreatment(germanSeller(), BuyerProfile{CountryCode: "fr", VatId: "FR12345678901"}, allPermissions())
	if d.Treatment != TaxTreatmentEuB2bRc {
		t.Errorf("lowercase fr buyer: treatment = %s, want EU_B2B_RC", d.Treatment)
	}

	d = DecideVatTreatment(germanSeller(), BuyerProfile{CountryCode: "de"}, allPermissions())
	if d.Treatment != TaxTreatmentDomestic {
		t.Errorf("lowercase de buyer: treatment = %s, want DOMESTIC", d.Treatment)
	}

	seller := germanSeller()
	seller.CountryCode = " de "
	d = DecideVatTreatment(seller, BuyerProfile{CountryCode: "DE"}, IssuerPermissions{})
	if d.Treatment != TaxTreatmentDomestic {
		t.Errorf("padded lowercase seller: treatment = %s, want DOMESTIC", d.Treatment)
	}
}

func TestNormalizeCountryCode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"DE", "DE"},
		{"fr", "FR"},
		{" at ", "AT"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeCountryCode(tc.in); got != tc.want {
			t.Errorf("NormalizeCountryCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
