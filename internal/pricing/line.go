package pricing

// MRPSource records which field supplied a line's MRP.
type MRPSource string

const (
	MRPFromCart           MRPSource = "cart-field"
	MRPFromProductDetails MRPSource = "product-details"
	MRPFromCatalog        MRPSource = "csv-catalog"
	MRPFromCurrentPrice   MRPSource = "current-price-fallback"
)

// MRPLookup resolves a raw MRP cell from the exported product catalog.
type MRPLookup interface {
	LookupMRP(slug string) (string, bool)
}

// Details is the product-details object some cart responses embed.
type Details struct {
	MRP any `json:"mrp,omitempty"`
}

// Product wraps Details for responses that nest the product one level deeper.
type Product struct {
	Details *Details `json:"details,omitempty"`
}

// LineItem is a single cart line. CurrentPrice and every MRP candidate are
// tax-inclusive; MRP candidates stay raw because upstream shapes disagree.
type LineItem struct {
	ProductID    string   `json:"productId"`
	Slug         string   `json:"productSlug"`
	Title        string   `json:"title"`
	Quantity     int      `json:"quantity"`
	CurrentPrice Money    `json:"currentPrice"`
	Category     string   `json:"category,omitempty"`
	MRP          any      `json:"mrp,omitempty"`
	Details      *Details `json:"details,omitempty"`
	Product      *Product `json:"product,omitempty"`
}

// LineValuation holds every derived amount for one line.
type LineValuation struct {
	Item            LineItem
	MRP             Money
	MRPSource       MRPSource
	TaxRate         float64
	UnitTax         Money
	Tax             Money
	ProductDiscount Money
	MRPTotal        Money
	Total           Money
}

// ResolveMRP walks the MRP sources in priority order and returns the first
// positive value. When nothing is known the current price is used, which
// makes the line's product discount zero.
func ResolveMRP(item LineItem, lookup MRPLookup) (Money, MRPSource) {
	if v := ParsePrice(item.MRP); v > 0 {
		return v, MRPFromCart
	}
	if item.Details != nil {
		if v := ParsePrice(item.Details.MRP); v > 0 {
			return v, MRPFromProductDetails
		}
	}
	if item.Product != nil && item.Product.Details != nil {
		if v := ParsePrice(item.Product.Details.MRP); v > 0 {
			return v, MRPFromProductDetails
		}
	}
	if lookup != nil && item.Slug != "" {
		if raw, ok := lookup.LookupMRP(item.Slug); ok {
			if v := ParsePrice(raw); v > 0 {
				return v, MRPFromCatalog
			}
		}
	}
	return item.CurrentPrice, MRPFromCurrentPrice
}

// LineProductDiscount is (MRP - current price) * quantity, floored at zero.
func LineProductDiscount(item LineItem, lookup MRPLookup) Money {
	mrp, _ := ResolveMRP(item, lookup)
	return nonNegative((mrp - item.CurrentPrice) * Money(item.Quantity))
}

// LineTax extracts the tax contained in the line at its category rate.
func LineTax(item LineItem) Money {
	return ExtractTax(item.CurrentPrice, TaxRateFor(item.Category)).Tax * Money(item.Quantity)
}

// LineTotal is the tax-inclusive amount charged for the line.
func LineTotal(item LineItem) Money {
	return item.CurrentPrice * Money(item.Quantity)
}

// Valuate derives every per-line amount in one pass.
func Valuate(item LineItem, lookup MRPLookup) LineValuation {
	mrp, source := ResolveMRP(item, lookup)
	rate := TaxRateFor(item.Category)
	unitTax := ExtractTax(item.CurrentPrice, rate).Tax
	qty := Money(item.Quantity)
	return LineValuation{
		Item:            item,
		MRP:             mrp,
		MRPSource:       source,
		TaxRate:         rate,
		UnitTax:         unitTax,
		Tax:             unitTax * qty,
		ProductDiscount: nonNegative((mrp - item.CurrentPrice) * qty),
		MRPTotal:        mrp * qty,
		Total:           item.CurrentPrice * qty,
	}
}
