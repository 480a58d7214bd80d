package models

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func issuedInvoiceFixture() Invoice {
	issueDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	decidedAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	status := VatIdentityStatusValid
	number := "INV-2026-000042"
	return Invoice{
		ID:                      1,
		CompanyId:               7,
		ClientId:                3,
		Status:                  InvoiceStatusIssued,
		Number:                  &number,
		IssueDate:               &issueDate,
		Currency:                "EUR",
		TaxTreatment:            TaxTreatmentEuB2bRc,
		VatRate:                 decimal.Zero,
		VatReasonText:           VatReasonReverseCharge,
		VatDecidedAt:            &decidedAt,
		ClientVatStatusSnapshot: &status,
		ClientVatIdSnapshot:     "FR12345678901",
		SellerSnapshot:          `{"name":"Acme GmbH"}`,
		BuyerSnapshot:           `{"name":"Client SARL"}`,
	}
}

func TestImmutableFieldViolationsCleanUpdate(t *testing.T) {
	persisted := issuedInvoiceFixture()
	updated := persisted

	// status and due date stay mutable forever
	updated.Status = InvoiceStatusPaid
	due := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	updated.DueDate = &due

	if v := ImmutableFieldViolations(&persisted, &updated); len(v) != 0 {
		t.Errorf("violations = %v, want none", v)
	}
}

func TestImmutableFieldViolationsNamesEveryBlockedField(t *testing.T) {
	persisted := issuedInvoiceFixture()
	updated := persisted

	newIssue := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	newDecided := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	invalid := VatIdentityStatusInvalid
	updated.IssueDate = &newIssue
	updated.TaxTreatment = TaxTreatmentDomestic
	updated.VatRate = decimal.RequireFromString("19.00")
	updated.VatReasonText = ""
	updated.VatDecidedAt = &newDecided
	updated.ClientVatStatusSnapshot = &invalid
	updated.ClientVatIdSnapshot = "DE999999999"
	updated.SellerSnapshot = `{"name":"Other GmbH"}`
	updated.BuyerSnapshot = `{"name":"Other SARL"}`

	violations := ImmutableFieldViolations(&persisted, &updated)
	for _, field := range []string{
		"issue_date", "tax_treatment", "vat_rate", "vat_reason_text",
		"vat_decided_at", "seller_snapshot", "client_vat_status_snapshot",
		"client_vat_id_snapshot", "buyer_snapshot",
	} {
		found := false
		for _, v := range violations {
			if v == field {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("violations %v missing %q", violations, field)
		}
	}
	if len(violations) != 9 {
		t.Errorf("got %d violations, want 9", len(violations))
	}
}

func TestImmutableFieldViolationsSingleField(t *testing.T) {
	persisted := issuedInvoiceFixture()
	updated := persisted
	updated.VatRate = decimal.RequireFromString("19.00")

	violations := ImmutableFieldViolations(&persisted, &updated)
	if len(violations) != 1 || violations[0] != "vat_rate" {
		t.Errorf("violations = %v, want [vat_rate]", violations)
	}

	err := ImmutableFieldError(violations)
	if !strings.Contains(err.Error(), "vat_rate") {
		t.Errorf("error %q does not name the blocked field", err.Error())
	}
}

func TestImmutableFieldViolationsSameDateDifferentClock(t *testing.T) {
	// issue dates compare by calendar day, not wall clock
	persisted := issuedInvoiceFixture()
	updated := persisted
	shifted := persisted.IssueDate.Add(6 * time.Hour)
	updated.IssueDate = &shifted

	if v := ImmutableFieldViolations(&persisted, &updated); len(v) != 0 {
		t.Errorf("violations = %v, want none for same calendar day", v)
	}
}

func TestCanTransitionInvoiceStatus(t *testing.T) {
	cases := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceStatusDraft, InvoiceStatusIssued, true},
		{InvoiceStatusDraft, InvoiceStatusPaid, false},
		{InvoiceStatusDraft, InvoiceStatusVoided, false},
		{InvoiceStatusIssued, InvoiceStatusPaid, true},
		{InvoiceStatusIssued, InvoiceStatusVoided, true},
		{InvoiceStatusPaid, InvoiceStatusVoided, true},
		{InvoiceStatusVoided, InvoiceStatusIssued, true},
		{InvoiceStatusIssued, InvoiceStatusDraft, false},
		{InvoiceStatusPaid, InvoiceStatusDraft, false},
	}
	for _, tc := range cases {
		if got := CanTransitionInvoiceStatus(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionInvoiceStatus(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
