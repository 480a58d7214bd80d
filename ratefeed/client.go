package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.vatstack.example.com/v1"

// Client fetches official VAT rates and daily EUR-based FX reference rates
// from the configured rate feed.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient() *Client {
	baseURL := os.Getenv("RATEFEED_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  os.Getenv("RATEFEED_API_KEY"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CountryRates is the feed's answer for one country.
type CountryRates struct {
	CountryCode  string            `json:"country_code"`
	StandardRate decimal.Decimal   `json:"standard_rate"`
	ReducedRates []decimal.Decimal `json:"reduced_rates"`
}

// GetStandardRate returns the standard VAT rate for a country, or nil when
// the feed has no entry for it.
func (c *Client) GetStandardRate(ctx context.Context, countryCode string) (*decimal.Decimal, error) {
	rates, err := c.GetAllRates(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	if rates == nil {
		return nil, nil
	}
	rate := rates.StandardRate
	return &rate, nil
}

func (c *Client) GetAllRates(ctx context.Context, countryCode string) (*CountryRates, error) {
	url := fmt.Sprintf("%s/vat-rates/%s", c.BaseURL, countryCode)
	body, status, err := c.getWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("rate feed returned status %d", status)
	}

	var rates CountryRates
	if err := json.Unmarshal(body, &rates); err != nil {
		return nil, err
	}
	return &rates, nil
}

type dailyRatesResponse struct {
	Date  string                     `json:"date"`
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// GetDailyEurRates returns the EUR-based reference rates published for a
// date: units of each currency per one EUR.
func (c *Client) GetDailyEurRates(ctx context.Context, date time.Time) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/fx-rates?base=EUR&date=%s", c.BaseURL, date.Format("2006-01-02"))
	body, status, err := c.getWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("rate feed returned status %d", status)
	}

	var parsed dailyRatesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Rates, nil
}

// getWithRetry performs the request and retries once on a transport error
// or a 5xx answer.
func (c *Client) getWithRetry(ctx context.Context, url string) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, err
		}
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= 500 && attempt == 0 {
			lastErr = fmt.Errorf("rate feed returned status %d", resp.StatusCode)
			continue
		}
		return body, resp.StatusCode, nil
	}
	return nil, 0, lastErr
}
