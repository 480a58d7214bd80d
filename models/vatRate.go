package models

import (
	"context"
	"errors"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VatRateEntry holds the standard VAT rate for one country as fetched from
// the rate feed. One row per country; refresh keeps the last known good rate
// when the feed fails and records the failure on the row.
type VatRateEntry struct {
	ID           int             `gorm:"primary_key" json:"id"`
	CountryCode  string          `gorm:"size:2;uniqueIndex:idx_vat_rate_country;not null" json:"country_code"`
	StandardRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"standard_rate"`
	FetchedAt    *time.Time      `json:"fetched_at"`
	LastError    string          `gorm:"size:500" json:"last_error"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetStandardRate returns the official standard rate for a country, or nil
// when the feed has never delivered one. Callers fall back to the company's
// configured default in that case.
func GetStandardRate(ctx context.Context, countryCode string) (*decimal.Decimal, error) {
	db := config.GetDB()

	var entry VatRateEntry
	err := db.WithContext(ctx).
		Where("country_code = ?", countryCode).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rate := entry.StandardRate
	return &rate, nil
}

// GetAllStandardRates returns every stored rate keyed by country code.
func GetAllStandardRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	db := config.GetDB()

	var entries []VatRateEntry
	if err := db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	rates := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		rates[e.CountryCode] = e.StandardRate
	}
	return rates, nil
}

// UpsertStandardRate records a freshly fetched rate, clearing any previous
// fetch error for the country.
func UpsertStandardRate(ctx context.Context, countryCode string, rate decimal.Decimal, fetchedAt time.Time) error {
	db := config.GetDB()

	entry := VatRateEntry{
		CountryCode:  countryCode,
		StandardRate: rate,
		FetchedAt:    &fetchedAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "country_code"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"standard_rate": rate,
				"fetched_at":    fetchedAt,
				"last_error":    "",
			}),
		}).
		Create(&entry).Error
}

// MarkRateFetchFailed notes a feed failure without touching the stored rate.
// The previous rate stays in effect until the next successful fetch.
func MarkRateFetchFailed(ctx context.Context, countryCode string, fetchErr error) error {
	db := config.GetDB()

	message := fetchErr.Error()
	if len(message) > 500 {
		message = message[:500]
	}
	return db.WithContext(ctx).
		Model(&VatRateEntry{}).
		Where("country_code = ?", countryCode).
		Update("last_error", message).Error
}
