package vies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultBaseURL = "https://ec.europa.eu/taxation_customs/vies/rest-api"

// Client talks to the VIES REST API. Calls are bounded by a short timeout
// and retried once on transport errors; anything beyond that is the job
// scheduler's business.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	baseURL := os.Getenv("VIES_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CheckVat validates a (country, vat number) pair against VIES. A service
// outage surfaces as an error so the caller can schedule a retry; a clean
// "not registered" answer comes back as CheckStatusInvalid.
func (c *Client) CheckVat(ctx context.Context, countryCode string, vatNumber string) (*CheckResult, error) {
	body, err := json.Marshal(checkVatRequest{
		CountryCode: countryCode,
		VatNumber:   vatNumber,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.postOnceWithRetry(ctx, c.BaseURL+"/check-vat-number", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("vies returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed checkVatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.UserError != "" && parsed.UserError != "VALID" && parsed.UserError != "INVALID" {
		// MS_UNAVAILABLE, TIMEOUT, GLOBAL_MAX_CONCURRENT_REQ and friends
		return nil, fmt.Errorf("vies service error: %s", parsed.UserError)
	}

	status := CheckStatusInvalid
	if parsed.Valid {
		status = CheckStatusValid
	}
	checkedAt := time.Now().UTC()
	if parsed.RequestDate != "" {
		if t, err := time.Parse(time.RFC3339, parsed.RequestDate); err == nil {
			checkedAt = t
		}
	}
	return &CheckResult{
		Status:         status,
		CompanyName:    parsed.Name,
		CompanyAddress: parsed.Address,
		CheckedAt:      checkedAt,
	}, nil
}

// postOnceWithRetry performs the request and retries once on a transport
// error or a 5xx answer.
func (c *Client) postOnceWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt == 0 {
			resp.Body.Close()
			lastErr = fmt.Errorf("vies returned status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
