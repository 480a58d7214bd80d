package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/utils"
	"gorm.io/gorm"
)

// Client is the buyer. The VAT identity link is recomputed whenever the
// (country_code, vat_id) pair changes.
type Client struct {
	ID            int            `gorm:"primary_key" json:"id"`
	CompanyId     int            `gorm:"index;not null" json:"company_id"`
	Name          string         `gorm:"size:255;not null" json:"name" binding:"required"`
	CountryCode   string         `gorm:"size:2;not null" json:"country_code" binding:"required"`
	VatId         string         `gorm:"size:20" json:"vat_id"`
	VatIdentityId *int           `gorm:"index" json:"vat_identity_id"`
	VatIdentity   *VatIdentity   `gorm:"foreignKey:VatIdentityId" json:"vat_identity"`
	Email         string         `gorm:"size:255" json:"email"`
	Phone         string         `gorm:"size:50" json:"phone"`
	AddressLine1  string         `gorm:"size:255" json:"address_line_1"`
	AddressLine2  string         `gorm:"size:255" json:"address_line_2"`
	City          string         `gorm:"size:100" json:"city"`
	PostalCode    string         `gorm:"size:20" json:"postal_code"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Name         string `json:"name" binding:"required"`
	CountryCode  string `json:"country_code" binding:"required,len=2"`
	VatId        string `json:"vat_id"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
}

func (input *NewClient) normalize() {
	input.CountryCode = NormalizeCountryCode(input.CountryCode)
	input.VatId = strings.TrimSpace(input.VatId)
}

func (input *NewClient) validate() error {
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, input.CountryCode); err != nil {
			return fmt.Errorf("invalid phone number: %w", err)
		}
	}
	return nil
}

// BuyerProfile builds the decision engine input from the client and its
// linked identity (if any).
func (c *Client) BuyerProfile(ctx context.Context) (BuyerProfile, error) {
	profile := BuyerProfile{
		CountryCode: c.CountryCode,
		VatId:       c.VatId,
	}
	if c.VatIdentityId != nil {
		identity, err := GetVatIdentity(ctx, *c.VatIdentityId)
		if err != nil {
			return profile, err
		}
		profile.VatStatus = &identity.Status
	}
	return profile, nil
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	return utils.FetchModel[Client](ctx, companyId, id)
}

func GetClientsAll(ctx context.Context) ([]*Client, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[Client](ctx, companyId)
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	input.normalize()
	if err := input.validate(); err != nil {
		return nil, err
	}

	client := Client{
		CompanyId:    companyId,
		Name:         input.Name,
		CountryCode:  input.CountryCode,
		VatId:        input.VatId,
		Email:        input.Email,
		Phone:        input.Phone,
		AddressLine1: input.AddressLine1,
		AddressLine2: input.AddressLine2,
		City:         input.City,
		PostalCode:   input.PostalCode,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&client).Error; err != nil {
			return err
		}
		if client.VatId != "" {
			identity, err := ResolveOrCreateVatIdentity(ctx, tx, client.CountryCode, client.VatId)
			if err != nil {
				return err
			}
			if err := tx.Model(&client).Update("vat_identity_id", identity.ID).Error; err != nil {
				return err
			}
			client.VatIdentityId = &identity.ID
		}
		return AppendEventLog(tx, EventActionCreate, "clients", client.ID, nil, &client, fmt.Sprintf("Client %s created.", client.Name))
	})
	if err != nil {
		return nil, err
	}

	if client.VatIdentityId != nil {
		if _, err := EnqueueValidationIfStale(ctx, *client.VatIdentityId); err != nil {
			config.LogError(config.GetLogger(), "client.go", "CreateClient", "EnqueueValidationIfStale", client.ID, err)
		}
	}
	return &client, nil
}

// UpdateClient persists the input and relinks the VAT identity when the
// (country_code, vat_id) pair changed. The old/new comparison happens right
// here and the result is passed down explicitly; nothing rides on transient
// entity state.
func UpdateClient(ctx context.Context, id int, input *NewClient) (*Client, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	input.normalize()
	if err := input.validate(); err != nil {
		return nil, err
	}

	client, err := utils.FetchModel[Client](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	before := *client

	identityChanged := before.CountryCode != input.CountryCode || before.VatId != input.VatId

	var newIdentityId *int
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"name":           input.Name,
			"country_code":   input.CountryCode,
			"vat_id":         input.VatId,
			"email":          input.Email,
			"phone":          input.Phone,
			"address_line_1": input.AddressLine1,
			"address_line_2": input.AddressLine2,
			"city":           input.City,
			"postal_code":    input.PostalCode,
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

		if err := tx.Model(&client).Updates(updates).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionUpdate, "clients", client.ID, &before, client, fmt.Sprintf("Client %s updated.", input.Name))
	})
	if err != nil {
		return nil, err
	}

	if identityChanged && newIdentityId != nil {
		if _, err := EnqueueValidationIfStale(ctx, *newIdentityId); err != nil {
			config.LogError(config.GetLogger(), "client.go", "UpdateClient", "EnqueueValidationIfStale", client.ID, err)
		}
	}
	return client, nil
}

// DeleteClient tombstones the client and appends the audit event in the
// same transaction.
func DeleteClient(ctx context.Context, id int) (*Client, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}

	client, err := utils.FetchModel[Client](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&client).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionDelete, "clients", client.ID, client, nil, fmt.Sprintf("Client %s deleted.", client.Name))
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func RestoreClient(ctx context.Context, id int) (*Client, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var client Client
	if err := db.WithContext(ctx).Unscoped().
		Where("company_id = ?", companyId).
		First(&client, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Model(&client).Update("deleted_at", nil).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionRestore, "clients", client.ID, nil, &client, fmt.Sprintf("Client %s restored.", client.Name))
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}
