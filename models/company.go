package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Company is the seller/tenant. default_vat_rate is always present; the
// override rate is meaningful only while the override flag is enabled.
type Company struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	Name               string          `gorm:"size:255;not null" json:"name" binding:"required"`
	CountryCode        string          `gorm:"size:2;not null" json:"country_code" binding:"required"`
	RegistrationNumber string          `gorm:"size:100" json:"registration_number"`
	TaxIdentifier      string          `gorm:"size:100" json:"tax_identifier"`
	VatId              string          `gorm:"size:20" json:"vat_id"`
	AddressLine1       string          `gorm:"size:255" json:"address_line_1"`
	AddressLine2       string          `gorm:"size:255" json:"address_line_2"`
	City               string          `gorm:"size:100" json:"city"`
	PostalCode         string          `gorm:"size:20" json:"postal_code"`
	DefaultVatRate     decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"default_vat_rate"`
	VatOverrideEnabled bool            `gorm:"default:false" json:"vat_override_enabled"`
	VatOverrideRate    decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"vat_override_rate"`
	InvoicePrefix      string          `gorm:"size:20" json:"invoice_prefix"`
	VatIdentityId      *int            `gorm:"index" json:"vat_identity_id"`
	VatIdentity        *VatIdentity    `gorm:"foreignKey:VatIdentityId" json:"vat_identity"`
	LogoObjectName     string          `gorm:"size:255" json:"logo_object_name"`
	BankAccounts       []BankAccount   `gorm:"foreignKey:CompanyId" json:"bank_accounts"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name               string          `json:"name" binding:"required"`
	CountryCode        string          `json:"country_code" binding:"required,len=2"`
	RegistrationNumber string          `json:"registration_number"`
	TaxIdentifier      string          `json:"tax_identifier"`
	VatId              string          `json:"vat_id"`
	AddressLine1       string          `json:"address_line_1"`
	AddressLine2       string          `json:"address_line_2"`
	City               string          `json:"city"`
	PostalCode         string          `json:"postal_code"`
	DefaultVatRate     decimal.Decimal `json:"default_vat_rate"`
	VatOverrideEnabled bool            `json:"vat_override_enabled"`
	VatOverrideRate    decimal.Decimal `json:"vat_override_rate"`
	InvoicePrefix      string          `json:"invoice_prefix"`
}

func (input *NewCompany) normalize() {
	input.CountryCode = NormalizeCountryCode(input.CountryCode)
	input.VatId = strings.TrimSpace(input.VatId)
}

// legal identity fields an invoice issuer must have on file
var legalIdentityFields = []struct {
	label string
	value func(*Company) string
}{
	{"name", func(c *Company) string { return c.Name }},
	{"country_code", func(c *Company) string { return c.CountryCode }},
	{"registration_number", func(c *Company) string { return c.RegistrationNumber }},
	{"tax_identifier", func(c *Company) string { return c.TaxIdentifier }},
	{"address_line_1", func(c *Company) string { return c.AddressLine1 }},
	{"city", func(c *Company) string { return c.City }},
	{"postal_code", func(c *Company) string { return c.PostalCode }},
}

// MissingLegalIdentityFields lists the empty legal identity fields, in a
// stable order, for precondition error messages.
func (c *Company) MissingLegalIdentityFields() []string {
	var missing []string
	for _, field := range legalIdentityFields {
		if field.value(c) == "" {
			missing = append(missing, field.label)
		}
	}
	return missing
}

// SellerProfile builds the decision engine input, looking up the synced
// official standard rate for the company's country.
func (c *Company) SellerProfile(ctx context.Context) (SellerProfile, error) {
	official, err := GetStandardRate(ctx, c.CountryCode)
	if err != nil {
		return SellerProfile{}, err
	}
	return SellerProfile{
		CountryCode:          c.CountryCode,
		DefaultVatRate:       c.DefaultVatRate,
		VatOverrideEnabled:   c.VatOverrideEnabled,
		VatOverrideRate:      c.VatOverrideRate,
		OfficialStandardRate: official,
	}, nil
}

func GetCompanyById(ctx context.Context, id int) (*Company, error) {
	return utils.FetchSingleModel[Company](ctx, id, "BankAccounts")
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	db := config.GetDB()
	input.normalize()

	company := Company{
		Name:               input.Name,
		CountryCode:        input.CountryCode,
		RegistrationNumber: input.RegistrationNumber,
		TaxIdentifier:      input.TaxIdentifier,
		VatId:              input.VatId,
		AddressLine1:       input.AddressLine1,
		AddressLine2:       input.AddressLine2,
		City:               input.City,
		PostalCode:         input.PostalCode,
		DefaultVatRate:     input.DefaultVatRate,
		VatOverrideEnabled: input.VatOverrideEnabled,
		VatOverrideRate:    input.VatOverrideRate,
		InvoicePrefix:      input.InvoicePrefix,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		if input.VatId != "" {
			identity, err := ResolveOrCreateVatIdentity(ctx, tx, input.CountryCode, input.VatId)
			if err != nil {
				return err
			}
			if err := tx.Model(&company).Update("vat_identity_id", identity.ID).Error; err != nil {
				return err
			}
			company.VatIdentityId = &identity.ID
		}
		return AppendEventLog(tx, EventActionCreate, "companies", company.ID, nil, &company, fmt.Sprintf("Company %s created.", company.Name))
	})
	if err != nil {
		return nil, err
	}

	if company.VatIdentityId != nil {
		// outside the tx: the enqueue throttle does its own atomic claim
		if _, err := EnqueueValidationIfStale(ctx, *company.VatIdentityId); err != nil {
			config.LogError(config.GetLogger(), "company.go", "CreateCompany", "EnqueueValidationIfStale", company.ID, err)
		}
	}
	return &company, nil
}

// UpdateCompany persists changed settings. The old row is compared against
// the input directly here (no ambient entity flags): a changed (country,
// vat_id) pair relinks the VAT identity, and a change to any VAT-relevant
// setting schedules a bulk recompute of the tenant's draft invoices.
func UpdateCompany(ctx context.Context, id int, input *NewCompany) (*Company, error) {
	db := config.GetDB()
	input.normalize()

	company, err := utils.FetchSingleModel[Company](ctx, id)
	if err != nil {
		return nil, err
	}
	before := *company

	identityChanged := before.CountryCode != input.CountryCode || before.VatId != input.VatId
	vatSettingsChanged := identityChanged ||
		!before.DefaultVatRate.Equal(input.DefaultVatRate) ||
		before.VatOverrideEnabled != input.VatOverrideEnabled ||
		!before.VatOverrideRate.Equal(input.VatOverrideRate)

	var newIdentityId *int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"name":                 input.Name,
			"country_code":         input.CountryCode,
			"registration_number":  input.RegistrationNumber,
			"tax_identifier":       input.TaxIdentifier,
			"vat_id":               input.VatId,
			"address_line_1":       input.AddressLine1,
			"address_line_2":       input.AddressLine2,
			"city":                 input.City,
			"postal_code":          input.PostalCode,
			"default_vat_rate":     input.DefaultVatRate,
			"vat_override_enabled": input.VatOverrideEnabled,
			"vat_override_rate":    input.VatOverrideRate,
			"invoice_prefix":       input.InvoicePrefix,
		}

		if identityChanged {
			if input.VatId == "" {
				updates["vat_identity_id"] = nil
			} else {
				identity, err := ResolveOrCreateVatIdentity(ctx, tx, input.CountryCode, input.VatId)
				if err != nil {
					return err
				}
				updates["vat_identity_id"] = identity.ID
				newIdentityId = &identity.ID
			}
		}

		if err := tx.Model(&company).Updates(updates).Error; err != nil {
			return err
		}

		if vatSettingsChanged {
			if err := EnqueueJob(ctx, tx, company.ID, JobTypeDraftRecompute, "companies", company.ID, nil); err != nil {
				return err
			}
		}
		return AppendEventLog(tx, EventActionUpdate, "companies", company.ID, &before, company, fmt.Sprintf("Company %s updated.", input.Name))
	})
	if err != nil {
		return nil, err
	}

	if identityChanged && newIdentityId != nil {
		if _, err := EnqueueValidationIfStale(ctx, *newIdentityId); err != nil {
			config.LogError(config.GetLogger(), "company.go", "UpdateCompany", "EnqueueValidationIfStale", company.ID, err)
		}
	}
	return company, nil
}

// UploadCompanyLogo stores the logo (plus thumbnail) in the bucket and
// records the object name on the company row.
func UploadCompanyLogo(ctx context.Context, companyId int, encoded string) (*Company, error) {
	db := config.GetDB()

	company, err := utils.FetchSingleModel[Company](ctx, companyId)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("logos/%d/%s", companyId, utils.GenerateUniqueFilename())
	if err := utils.SaveLogoWithThumbnail(ctx, objectName, encoded); err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Model(&company).Update("logo_object_name", objectName).Error; err != nil {
		return nil, err
	}
	return company, nil
}

// CurrentCompany loads the tenant from the request context.
func CurrentCompany(ctx context.Context) (*Company, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	return GetCompanyById(ctx, companyId)
}
