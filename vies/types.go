package vies

import "time"

// CheckStatus mirrors the registry's identity statuses.
type CheckStatus string

const (
	CheckStatusValid   CheckStatus = "valid"
	CheckStatusInvalid CheckStatus = "invalid"
	CheckStatusPending CheckStatus = "pending"
	CheckStatusUnknown CheckStatus = "unknown"
)

// CheckResult is one answer from the VIES REST service.
type CheckResult struct {
	Status         CheckStatus `json:"status"`
	CompanyName    string      `json:"company_name,omitempty"`
	CompanyAddress string      `json:"company_address,omitempty"`
	CheckedAt      time.Time   `json:"checked_at"`
}

type checkVatRequest struct {
	CountryCode string `json:"countryCode"`
	VatNumber   string `json:"vatNumber"`
}

type checkVatResponse struct {
	CountryCode string `json:"countryCode"`
	VatNumber   string `json:"vatNumber"`
	Valid       bool   `json:"valid"`
	RequestDate string `json:"requestDate"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	UserError   string `json:"userError"`
}
