package vies

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func testClient(srv *httptest.Server) *Client {
	return &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
}

func TestCheckVat_Valid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check-vat-number" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req checkVatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.CountryCode != "DE" || req.VatNumber != "123456789" {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(checkVatResponse{
			CountryCode: "DE",
			VatNumber:   "123456789",
			Valid:       true,
			RequestDate: "2026-08-31T10:00:00Z",
			Name:        "Beispiel GmbH",
			Address:     "Musterstrasse 1, Berlin",
		})
	}))
	defer srv.Close()

	result, err := testClient(srv).CheckVat(context.Background(), "DE", "123456789")
	if err != nil {
		t.Fatalf("CheckVat: %v", err)
	}
	if result.Status != CheckStatusValid {
		t.Errorf("status = %s, want valid", result.Status)
	}
	if result.CompanyName != "Beispiel GmbH" {
		t.Errorf("company name = %q", result.CompanyName)
	}
	if result.CheckedAt.Format("2006-01-02") != "2026-08-31" {
		t.Errorf("checked at = %v, want request date", result.CheckedAt)
	}
}

func TestCheckVat_Invalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(checkVatResponse{Valid: false, UserError: "INVALID"})
	}))
	defer srv.Close()

	result, err := testClient(srv).CheckVat(context.Background(), "DE", "000000000")
	if err != nil {
		t.Fatalf("CheckVat: %v", err)
	}
	if result.Status != CheckStatusInvalid {
		t.Errorf("status = %s, want invalid", result.Status)
	}
}

func TestCheckVat_ServiceErrorSurfacesForRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(checkVatResponse{UserError: "MS_UNAVAILABLE"})
	}))
	defer srv.Close()

	_, err := testClient(srv).CheckVat(context.Background(), "DE", "123456789")
	if err == nil {
		t.Fatal("expected an error for MS_UNAVAILABLE")
	}
	if !strings.Contains(err.Error(), "MS_UNAVAILABLE") {
		t.Errorf("error %q should name the service error", err)
	}
}

func TestCheckVat_RetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(checkVatResponse{Valid: true})
	}))
	defer srv.Close()

	result, err := testClient(srv).CheckVat(context.Background(), "DE", "123456789")
	if err != nil {
		t.Fatalf("CheckVat after retry: %v", err)
	}
	if result.Status != CheckStatusValid {
		t.Errorf("status = %s, want valid", result.Status)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
