package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundHalfUpMinor(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  int64
	}{
		{"exact", "100", 100},
		{"below half", "100.4", 100},
		{"half rounds up", "100.5", 101},
		{"above half", "100.6", 101},
		{"negative below half", "-100.4", -100},
		{"negative half rounds toward positive", "-100.5", -100},
		{"negative above half", "-100.6", -101},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := decimal.NewFromString(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if got := RoundHalfUpMinor(d); got != tc.want {
				t.Errorf("RoundHalfUpMinor(%s) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestLineTotalMinor(t *testing.T) {
	cases := []struct {
		name      string
		qty       string
		unitPrice int64
		want      int64
	}{
		{"whole quantity", "2", 1000, 2000},
		{"fractional quantity rounds up", "1.5", 999, 1499},
		{"third rounds", "0.333", 100, 33},
		{"credit line", "1.5", -999, -1498},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qty, err := decimal.NewFromString(tc.qty)
			if err != nil {
				t.Fatal(err)
			}
			if got := LineTotalMinor(qty, tc.unitPrice); got != tc.want {
				t.Errorf("LineTotalMinor(%s, %d) = %d, want %d", tc.qty, tc.unitPrice, got, tc.want)
			}
		})
	}
}

func TestComputeInvoiceTotals(t *testing.T) {
	items := []*InvoiceItem{
		{Quantity: decimal.NewFromInt(2), UnitPriceMinor: 1000},
		{Quantity: decimal.RequireFromString("1.5"), UnitPriceMinor: 999},
	}
	rate := decimal.RequireFromString("19.00")

	totals := ComputeInvoiceTotals(items, rate)

	if items[0].LineTotalMinor != 2000 {
		t.Errorf("first line total = %d, want 2000", items[0].LineTotalMinor)
	}
	if items[1].LineTotalMinor != 1499 {
		t.Errorf("second line total = %d, want 1499", items[1].LineTotalMinor)
	}
	if totals.SubtotalMinor != 3499 {
		t.Errorf("subtotal = %d, want 3499", totals.SubtotalMinor)
	}
	if totals.VatMinor != 665 {
		t.Errorf("vat = %d, want 665", totals.VatMinor)
	}
	if totals.TotalMinor != 4164 {
		t.Errorf("total = %d, want 4164", totals.TotalMinor)
	}

	// idempotence: recomputing the same items changes nothing
	again := ComputeInvoiceTotals(items, rate)
	if again != totals {
		t.Errorf("recompute produced %+v, want %+v", again, totals)
	}
}

func TestComputeInvoiceTotalsZeroRate(t *testing.T) {
	items := []*InvoiceItem{
		{Quantity: decimal.NewFromInt(3), UnitPriceMinor: 250},
	}
	totals := ComputeInvoiceTotals(items, decimal.Zero)
	if totals.SubtotalMinor != 750 || totals.VatMinor != 0 || totals.TotalMinor != 750 {
		t.Errorf("zero-rate totals = %+v", totals)
	}
}

func TestComputeInvoiceTotalsEmpty(t *testing.T) {
	totals := ComputeInvoiceTotals(nil, decimal.RequireFromString("19"))
	if totals.SubtotalMinor != 0 || totals.VatMinor != 0 || totals.TotalMinor != 0 {
		t.Errorf("empty totals = %+v", totals)
	}
}

func TestMinorToMajor(t *testing.T) {
	if got := MinorToMajor(4164); got != "41.64" {
		t.Errorf("MinorToMajor(4164) = %q", got)
	}
	if got := MinorToMajor(-50); got != "-0.50" {
		t.Errorf("MinorToMajor(-50) = %q", got)
	}
}
