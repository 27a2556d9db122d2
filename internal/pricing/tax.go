package pricing

import "strings"

const (
	// HairCareTaxRate applies to categories mentioning "hair".
	HairCareTaxRate = 0.05
	// StandardTaxRate applies to every other category.
	StandardTaxRate = 0.18
)

// TaxSplit is a tax-inclusive price separated into its base and tax parts.
type TaxSplit struct {
	Base Money
	Tax  Money
}

// TaxRateFor maps a product category to its tax rate. Missing categories use
// the standard rate.
func TaxRateFor(category string) float64 {
	if strings.Contains(strings.ToLower(category), "hair") {
		return HairCareTaxRate
	}
	return StandardTaxRate
}

// ExtractTax splits a tax-inclusive price. Tax is never added on top of the
// price: Base + Tax always equals the input.
func ExtractTax(price Money, rate float64) TaxSplit {
	base := price / (1 + rate)
	return TaxSplit{Base: base, Tax: price - base}
}
