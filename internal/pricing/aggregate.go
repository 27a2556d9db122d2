package pricing

import (
	"errors"
	"strings"
)

// ErrEmptyCart is returned when there is nothing to check out.
var ErrEmptyCart = errors.New("cart is empty")

// Mode tells whether totals cover the whole cart or a single buy-now product.
type Mode string

const (
	ModeCart   Mode = "cart"
	ModeBuyNow Mode = "buy-now"
)

// Totals aggregates line valuations for an order.
type Totals struct {
	Mode            Mode
	Lines           []LineValuation
	MRPTotal        Money
	ProductDiscount Money
	Subtotal        Money
	TaxTotal        Money
}

// SelectLines picks the lines to price. A non-empty buyNow restricts pricing
// to lines whose product id or slug matches it. Lines without a positive
// quantity are ignored.
func SelectLines(cart []LineItem, buyNow string) ([]LineItem, Mode, error) {
	target := strings.TrimSpace(buyNow)
	mode := ModeCart
	if target != "" {
		mode = ModeBuyNow
	}
	out := make([]LineItem, 0, len(cart))
	for _, it := range cart {
		if it.Quantity <= 0 {
			continue
		}
		if mode == ModeBuyNow && it.ProductID != target && it.Slug != target {
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil, mode, ErrEmptyCart
	}
	return out, mode, nil
}

// AggregateCart totals the whole cart. The subtotal comes from the cart-state
// owner and is not recomputed.
func AggregateCart(items []LineItem, cartSubtotal Money, lookup MRPLookup) Totals {
	t := sum(items, lookup)
	t.Mode = ModeCart
	t.Subtotal = cartSubtotal
	return t
}

// AggregateBuyNow totals a buy-now selection, computing the subtotal locally.
func AggregateBuyNow(items []LineItem, lookup MRPLookup) Totals {
	t := sum(items, lookup)
	t.Mode = ModeBuyNow
	for _, lv := range t.Lines {
		t.Subtotal += lv.Total
	}
	return t
}

// Aggregate dispatches on mode.
func Aggregate(items []LineItem, mode Mode, cartSubtotal Money, lookup MRPLookup) Totals {
	if mode == ModeBuyNow {
		return AggregateBuyNow(items, lookup)
	}
	return AggregateCart(items, cartSubtotal, lookup)
}

func sum(items []LineItem, lookup MRPLookup) Totals {
	t := Totals{Lines: make([]LineValuation, 0, len(items))}
	for _, it := range items {
		lv := Valuate(it, lookup)
		t.Lines = append(t.Lines, lv)
		t.MRPTotal += lv.MRPTotal
		t.ProductDiscount += lv.ProductDiscount
		t.TaxTotal += lv.Tax
	}
	return t
}
