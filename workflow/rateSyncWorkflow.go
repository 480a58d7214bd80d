package workflow

import (
	"context"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/models"
	"github.com/nordfaktur/invoicing_backend/ratefeed"
	"github.com/shopspring/decimal"
)

// RateFeed abstracts the external rate source for tests.
type RateFeed interface {
	GetAllRates(ctx context.Context, countryCode string) (*ratefeed.CountryRates, error)
	GetDailyEurRates(ctx context.Context, date time.Time) (map[string]decimal.Decimal, error)
}

var rateFeed RateFeed = ratefeed.NewClient()

func SetRateFeed(f RateFeed) {
	rateFeed = f
}

// SyncVatRates refreshes the stored standard rate for every EU country.
// Feed failures leave the previous rate untouched and are recorded on the
// country's row.
func SyncVatRates(ctx context.Context) {
	logger := config.GetLogger()
	now := time.Now().UTC()

	for countryCode := range config.EUCountries {
		rates, err := rateFeed.GetAllRates(ctx, countryCode)
		if err != nil {
			config.LogError(logger, "rateSyncWorkflow.go", "SyncVatRates", "GetAllRates", countryCode, err)
			if markErr := models.MarkRateFetchFailed(ctx, countryCode, err); markErr != nil {
				config.LogError(logger, "rateSyncWorkflow.go", "SyncVatRates", "MarkRateFetchFailed", countryCode, markErr)
			}
			continue
		}
		if rates == nil {
			continue
		}
		if err := models.UpsertStandardRate(ctx, countryCode, rates.StandardRate, now); err != nil {
			config.LogError(logger, "rateSyncWorkflow.go", "SyncVatRates", "UpsertStandardRate", countryCode, err)
		}
	}
}

// SyncExchangeRates pulls today's EUR reference rates into storage.
func SyncExchangeRates(ctx context.Context) {
	logger := config.GetLogger()
	today := time.Now().UTC().Truncate(24 * time.Hour)

	rates, err := rateFeed.GetDailyEurRates(ctx, today)
	if err != nil {
		config.LogError(logger, "rateSyncWorkflow.go", "SyncExchangeRates", "GetDailyEurRates", today, err)
		return
	}
	for currency, rate := range rates {
		if err := models.UpsertExchangeRate(ctx, currency, today, rate); err != nil {
			config.LogError(logger, "rateSyncWorkflow.go", "SyncExchangeRates", "UpsertExchangeRate", currency, err)
		}
	}
}

// RunRateSyncLoop refreshes both feeds once at startup and then daily.
func RunRateSyncLoop(ctx context.Context) {
	SyncVatRates(ctx)
	SyncExchangeRates(ctx)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SyncVatRates(ctx)
			SyncExchangeRates(ctx)
		}
	}
}
