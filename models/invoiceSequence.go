package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceSequence is the per-tenant, per-year, per-prefix counter behind
// invoice numbering. LastNumber only ever moves forward; rolled-back
// issuance transactions release their number because the increment commits
// or rolls back together with the invoice row.
type InvoiceSequence struct {
	ID         int       `gorm:"primary_key" json:"id"`
	CompanyId  int       `gorm:"uniqueIndex:idx_invoice_sequence;not null" json:"company_id"`
	Year       int       `gorm:"uniqueIndex:idx_invoice_sequence;not null" json:"year"`
	Prefix     string    `gorm:"size:20;uniqueIndex:idx_invoice_sequence;not null" json:"prefix"`
	LastNumber int       `gorm:"not null;default:0" json:"last_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const DefaultInvoicePrefix = "INV"

// NormalizeInvoicePrefix trims whitespace and trailing separators so that a
// configured "INV-" and "INV" feed the same sequence row.
func NormalizeInvoicePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimRight(prefix, "-_/ ")
	if prefix == "" {
		return DefaultInvoicePrefix
	}
	return prefix
}

func FormatInvoiceNumber(prefix string, year int, number int) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, number)
}

// NextInvoiceNumber allocates the next number for the company's prefix and
// the issue date's year, inside the caller's transaction. The row lock
// serializes concurrent issuances on the same sequence; two transactions
// can still race to create a missing row, which the duplicate-key retry
// turns into a plain lock wait on the winner's row.
func NextInvoiceNumber(tx *gorm.DB, company *Company, issueDate time.Time) (string, error) {
	prefix := NormalizeInvoicePrefix(company.InvoicePrefix)
	year := issueDate.Year()

	var seq InvoiceSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND year = ? AND prefix = ?", company.ID, year, prefix).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = InvoiceSequence{CompanyId: company.ID, Year: year, Prefix: prefix}
		if createErr := tx.Create(&seq).Error; createErr != nil {
			if !isDuplicateKeyError(createErr) {
				return "", createErr
			}
			// lost the creation race; lock the winner's row
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("company_id = ? AND year = ? AND prefix = ?", company.ID, year, prefix).
				First(&seq).Error; err != nil {
				return "", err
			}
		}
	} else if err != nil {
		return "", err
	}

	seq.LastNumber++
	if err := tx.Model(&InvoiceSequence{}).
		Where("id = ?", seq.ID).
		Update("last_number", seq.LastNumber).Error; err != nil {
		return "", err
	}
	return FormatInvoiceNumber(prefix, year, seq.LastNumber), nil
}
