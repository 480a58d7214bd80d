package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nordfaktur/invoicing_backend/models"
	"github.com/shopspring/decimal"
)

func TestIsPreconditionError(t *testing.T) {
	pe := &PreconditionError{Reason: "Company has no bank account."}
	if !IsPreconditionError(pe) {
		t.Error("plain precondition error not recognized")
	}
	if !IsPreconditionError(fmt.Errorf("issue invoice: %w", pe)) {
		t.Error("wrapped precondition error not recognized")
	}
	if IsPreconditionError(errors.New("connection refused")) {
		t.Error("ordinary error misclassified as precondition")
	}
	if IsPreconditionError(nil) {
		t.Error("nil misclassified as precondition")
	}
	if pe.Error() != "Company has no bank account." {
		t.Errorf("Error() = %q", pe.Error())
	}
}

func TestSellerSnapshotFor(t *testing.T) {
	company := &models.Company{
		Name:               "Beispiel Freelancing",
		CountryCode:        "DE",
		RegistrationNumber: "HRB 12345",
		TaxIdentifier:      "21/815/08150",
		AddressLine1:       "Musterstrasse 1",
		City:               "Berlin",
		PostalCode:         "10115",
	}
	profile := models.SellerProfile{
		CountryCode:    "DE",
		DefaultVatRate: decimal.NewFromInt(19),
	}

	got := sellerSnapshotFor(company, profile)
	if got.TaxId != "21/815/08150" {
		t.Errorf("snapshot tax id = %q, want the company tax identifier", got.TaxId)
	}
	if got.Name != "Beispiel Freelancing" || got.CountryCode != "DE" {
		t.Errorf("snapshot identity = %q/%q", got.Name, got.CountryCode)
	}
	if got.VatRate != "19.00" {
		t.Errorf("snapshot vat rate = %q, want 19.00", got.VatRate)
	}
}

func TestBuyerSnapshotFor(t *testing.T) {
	client := &models.Client{
		Name:        "Client SARL",
		CountryCode: "FR",
		VatId:       "FR12345678901",
		City:        "Paris",
	}

	got := buyerSnapshotFor(client, models.VatIdentityStatusValid)
	if got.VatId != "FR12345678901" || got.VatStatus != "valid" {
		t.Errorf("snapshot vat = %q/%q", got.VatId, got.VatStatus)
	}
	if got.Name != "Client SARL" || got.CountryCode != "FR" {
		t.Errorf("snapshot identity = %q/%q", got.Name, got.CountryCode)
	}
}
