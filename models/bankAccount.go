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

type BankAccount struct {
	ID        int            `gorm:"primary_key" json:"id"`
	CompanyId int            `gorm:"index;not null" json:"company_id"`
	Label     string         `gorm:"size:100;not null" json:"label" binding:"required"`
	Currency  string         `gorm:"size:3;not null" json:"currency" binding:"required"`
	Iban      string         `gorm:"size:34;not null" json:"iban" binding:"required"`
	Bic       string         `gorm:"size:11" json:"bic"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBankAccount struct {
	Label    string `json:"label" binding:"required"`
	Currency string `json:"currency" binding:"required,len=3"`
	Iban     string `json:"iban" binding:"required"`
	Bic      string `json:"bic"`
}

func (input *NewBankAccount) normalize() {
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	input.Iban = strings.ToUpper(strings.ReplaceAll(input.Iban, " ", ""))
	input.Bic = strings.ToUpper(strings.TrimSpace(input.Bic))
}

func CreateBankAccount(ctx context.Context, input *NewBankAccount) (*BankAccount, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	input.normalize()

	if err := utils.ValidateUnique[BankAccount](ctx, companyId, "label", input.Label, 0); err != nil {
		return nil, err
	}

	account := BankAccount{
		CompanyId: companyId,
		Label:     input.Label,
		Currency:  input.Currency,
		Iban:      input.Iban,
		Bic:       input.Bic,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionCreate, "bank_accounts", account.ID, nil, &account, fmt.Sprintf("Bank account %s (%s) added.", account.Label, account.Currency))
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func UpdateBankAccount(ctx context.Context, id int, input *NewBankAccount) (*BankAccount, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	input.normalize()

	if err := utils.ValidateUnique[BankAccount](ctx, companyId, "label", input.Label, id); err != nil {
		return nil, err
	}

	account, err := utils.FetchModel[BankAccount](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	before := *account

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&account).Updates(map[string]interface{}{
			"label":    input.Label,
			"currency": input.Currency,
			"iban":     input.Iban,
			"bic":      input.Bic,
		}).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionUpdate, "bank_accounts", account.ID, &before, account, fmt.Sprintf("Bank account %s updated.", input.Label))
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteBankAccount tombstones the account (deleted_at) and appends the
// audit event in the same transaction; the row is recoverable.
func DeleteBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}

	account, err := utils.FetchModel[BankAccount](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&account).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionDelete, "bank_accounts", account.ID, account, nil, fmt.Sprintf("Bank account %s deleted.", account.Label))
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func RestoreBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var account BankAccount
	if err := db.WithContext(ctx).Unscoped().
		Where("company_id = ?", companyId).
		First(&account, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Model(&account).Update("deleted_at", nil).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionRestore, "bank_accounts", account.ID, nil, &account, fmt.Sprintf("Bank account %s restored.", account.Label))
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CompanyHasBankAccountInCurrency checks the issuance precondition: the
// tenant must hold an account denominated in the invoice currency.
func CompanyHasBankAccountInCurrency(ctx context.Context, companyId int, currency string) (bool, error) {
	count, err := utils.ResourceCountWhere[BankAccount](ctx, companyId, "currency = ?", strings.ToUpper(currency))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func CompanyBankAccountCount(ctx context.Context, companyId int) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&BankAccount{}).
		Where("company_id = ?", companyId).
		Count(&count).Error
	return count, err
}
