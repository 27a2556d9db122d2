package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

func TestTaxRateFor(t *testing.T) {
	require.Equal(t, pricing.HairCareTaxRate, pricing.TaxRateFor("Hair Care"))
	require.Equal(t, pricing.HairCareTaxRate, pricing.TaxRateFor("anti-HAIRFALL"))
	require.Equal(t, pricing.StandardTaxRate, pricing.TaxRateFor("Face Serum"))
	require.Equal(t, pricing.StandardTaxRate, pricing.TaxRateFor(""))
}

func TestExtractTaxIdentity(t *testing.T) {
	prices := []pricing.Money{0, 0.01, 1, 99.99, 999, 1000, 1299.5, 123456.78}
	for _, p := range prices {
		for _, r := range []float64{pricing.HairCareTaxRate, pricing.StandardTaxRate} {
			split := pricing.ExtractTax(p, r)
			require.InDelta(t, p, split.Base+split.Tax, 1e-9)
			require.GreaterOrEqual(t, split.Tax, 0.0)
		}
	}
}

func TestExtractTaxIsNotAdditive(t *testing.T) {
	split := pricing.ExtractTax(999, pricing.StandardTaxRate)
	require.Equal(t, 846.61, pricing.Round2(split.Base))
	require.Equal(t, 152.39, pricing.Round2(split.Tax))
}
