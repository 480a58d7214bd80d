package models

import (
	"strings"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/shopspring/decimal"
)

const (
	VatReasonReverseCharge = "Reverse charge (EU B2B)."
	VatReasonOutsideEu     = "Outside EU VAT scope."
)

type VatDecision struct {
	Treatment TaxTreatment
	Rate      decimal.Decimal
	Reason    string
}

// SellerProfile is the seller-side input to the decision engine, detached
// from the Company row so the engine stays pure.
type SellerProfile struct {
	CountryCode        string
	DefaultVatRate     decimal.Decimal
	VatOverrideEnabled bool
	VatOverrideRate    decimal.Decimal
	// synced official standard rate, nil when the feed has no entry
	OfficialStandardRate *decimal.Decimal
}

// EffectiveVatRate resolves the seller's rate: enabled manual override,
// then the synced official rate, then the tenant-entered default.
func (s SellerProfile) EffectiveVatRate() decimal.Decimal {
	if s.VatOverrideEnabled {
		return s.VatOverrideRate
	}
	if s.OfficialStandardRate != nil {
		return *s.OfficialStandardRate
	}
	return s.DefaultVatRate
}

type BuyerProfile struct {
	CountryCode string
	VatId       string
	// status of the linked VAT identity; nil when no identity is linked
	VatStatus *VatIdentityStatus
}

type IssuerPermissions struct {
	CrossBorderB2B bool
	ViesValidation bool
}

// NormalizeCountryCode uppercases and trims an ISO 3166-1 alpha-2 code.
// Country comparisons and the EU membership check are exact-match, so every
// code entering the decision or the identity registry goes through here.
func NormalizeCountryCode(countryCode string) string {
	return strings.ToUpper(strings.TrimSpace(countryCode))
}

// DecideVatTreatment maps (seller, buyer, permissions) to a tax treatment.
// Ordered rules, first match wins:
//  1. same country -> DOMESTIC at the seller's effective rate
//  2. EU buyer with a VAT id and the cross-border permission -> reverse
//     charge, UNLESS the caller also holds the VIES permission and the
//     identity is known invalid (then fall through to EU B2C). A pending or
//     unknown status still reverse-charges: cross-border automation proceeds
//     before validation completes. Flagged for product confirmation.
//  3. EU buyer otherwise -> EU B2C at the seller's effective rate
//  4. everyone else -> NON_EU at zero
func DecideVatTreatment(seller SellerProfile, buyer BuyerProfile, perms IssuerPermissions) VatDecision {
	sellerRate := seller.EffectiveVatRate()
	sellerCountry := NormalizeCountryCode(seller.CountryCode)
	buyerCountry := NormalizeCountryCode(buyer.CountryCode)

	if buyerCountry == sellerCountry {
		return VatDecision{Treatment: TaxTreatmentDomestic, Rate: sellerRate}
	}

	if config.IsEUCountry(buyerCountry) {
		if buyer.VatId != "" && perms.CrossBorderB2B {
			knownInvalid := perms.ViesValidation &&
				buyer.VatStatus != nil && *buyer.VatStatus == VatIdentityStatusInvalid
			if !knownInvalid {
				return VatDecision{
					Treatment: TaxTreatmentEuB2bRc,
					Rate:      decimal.Zero,
					Reason:    VatReasonReverseCharge,
				}
			}
		}
		return VatDecision{Treatment: TaxTreatmentEuB2c, Rate: sellerRate}
	}

	return VatDecision{
		Treatment: TaxTreatmentNonEu,
		Rate:      decimal.Zero,
		Reason:    VatReasonOutsideEu,
	}
}
