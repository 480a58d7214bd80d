package models

import (
	"context"
	"errors"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExchangeRate stores one EUR-based reference rate per currency per day:
// Rate units of Currency buy one EUR. Cross rates between two non-EUR
// currencies go through EUR.
type ExchangeRate struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Currency  string          `gorm:"size:3;uniqueIndex:idx_exchange_rate_day;not null" json:"currency"`
	RateDate  time.Time       `gorm:"type:date;uniqueIndex:idx_exchange_rate_day;not null" json:"rate_date"`
	Rate      decimal.Decimal `gorm:"type:decimal(18,8);not null" json:"rate"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func UpsertExchangeRate(ctx context.Context, currency string, rateDate time.Time, rate decimal.Decimal) error {
	db := config.GetDB()

	entry := ExchangeRate{Currency: currency, RateDate: rateDate, Rate: rate}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "currency"}, {Name: "rate_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate"}),
		}).
		Create(&entry).Error
}

// eurRateOn returns the latest stored rate for the currency on or before
// the given date.
func eurRateOn(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	if currency == "EUR" {
		return decimal.NewFromInt(1), nil
	}
	db := config.GetDB()

	var entry ExchangeRate
	err := db.WithContext(ctx).
		Where("currency = ? AND rate_date <= ?", currency, date).
		Order("rate_date desc").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, utils.ErrorNoExchangeRate
	}
	if err != nil {
		return decimal.Zero, err
	}
	return entry.Rate, nil
}

// CrossRate returns how many units of the target currency one unit of the
// source currency buys on the given date, built from the two EUR legs.
func CrossRate(ctx context.Context, from string, to string, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	fromRate, err := eurRateOn(ctx, from, date)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := eurRateOn(ctx, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	if fromRate.IsZero() {
		return decimal.Zero, utils.ErrorNoExchangeRate
	}
	return toRate.Div(fromRate), nil
}

// ConvertMinorUnits converts an amount between currencies, rounding the
// result half up to minor units.
func ConvertMinorUnits(ctx context.Context, amountMinor int64, from string, to string, date time.Time) (int64, error) {
	rate, err := CrossRate(ctx, from, to, date)
	if err != nil {
		return 0, err
	}
	converted := decimal.NewFromInt(amountMinor).Mul(rate)
	return RoundHalfUpMinor(converted), nil
}
