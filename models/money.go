package models

import (
	"github.com/shopspring/decimal"
)

// All persisted monetary values are integers in minor currency units.
// Quantities and VAT rates stay decimal; rounding happens exactly once per
// derived value, with round-half-up semantics (ties toward positive
// infinity). decimal.Round is half-away-from-zero, which disagrees on
// negative ties (credit lines), so the rounding is spelled out here.

var decimalHalf = decimal.New(5, -1)
var decimalHundred = decimal.NewFromInt(100)

func RoundHalfUpMinor(d decimal.Decimal) int64 {
	return d.Add(decimalHalf).Floor().IntPart()
}

// LineTotalMinor computes round(qty × unitPrice) for one invoice line.
// unitPriceMinor may be negative to represent credits.
func LineTotalMinor(qty decimal.Decimal, unitPriceMinor int64) int64 {
	return RoundHalfUpMinor(qty.Mul(decimal.NewFromInt(unitPriceMinor)))
}

// VatAmountMinor computes round(subtotal × rate / 100).
func VatAmountMinor(subtotalMinor int64, vatRate decimal.Decimal) int64 {
	return RoundHalfUpMinor(decimal.NewFromInt(subtotalMinor).Mul(vatRate).Div(decimalHundred))
}

// MinorToMajor renders a minor-unit amount in major units for display and
// export. Two decimal places covers every supported currency.
func MinorToMajor(amountMinor int64) string {
	return decimal.New(amountMinor, -2).StringFixed(2)
}

type ComputedTotals struct {
	SubtotalMinor int64
	VatMinor      int64
	TotalMinor    int64
}

// ComputeInvoiceTotals fills each item's LineTotalMinor and returns the
// invoice aggregates. Idempotent: same inputs always produce the same output.
func ComputeInvoiceTotals(items []*InvoiceItem, vatRate decimal.Decimal) ComputedTotals {
	var subtotal int64
	for _, item := range items {
		item.LineTotalMinor = LineTotalMinor(item.Quantity, item.UnitPriceMinor)
		subtotal += item.LineTotalMinor
	}
	vat := VatAmountMinor(subtotal, vatRate)
	return ComputedTotals{
		SubtotalMinor: subtotal,
		VatMinor:      vat,
		TotalMinor:    subtotal + vat,
	}
}
