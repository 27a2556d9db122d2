package coupon

import (
	"errors"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

var (
	// ErrCodeRequired is returned when an empty code is submitted.
	ErrCodeRequired = errors.New("coupon code is required")
	// ErrInvalidCode is returned when the discount service rejects the code.
	ErrInvalidCode = errors.New("invalid code")
)

// Kind is the discount strategy of a coupon.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFlat       Kind = "flat"
)

// ParseKind normalises the kind spellings used by the discount service.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "percentage", "percent":
		return KindPercentage, true
	case "flat", "fixed", "fixed_amount", "amount":
		return KindFlat, true
	default:
		return "", false
	}
}

// Instrument is an accepted coupon. DiscountAmount, when set by the discount
// service, is authoritative and replaces the local computation.
type Instrument struct {
	Code           string         `json:"code"`
	Kind           Kind           `json:"kind"`
	Value          float64        `json:"value"`
	MaxDiscount    *pricing.Money `json:"maxDiscount,omitempty"`
	DiscountAmount *pricing.Money `json:"discountAmount,omitempty"`
}

// Amount returns the discount against subtotal. Flat discounts are not capped
// by the subtotal; the grand-total floor absorbs any excess.
func (i Instrument) Amount(subtotal pricing.Money) pricing.Money {
	if i.DiscountAmount != nil {
		return nonNegative(*i.DiscountAmount)
	}
	var discount pricing.Money
	switch i.Kind {
	case KindPercentage:
		discount = subtotal * i.Value / 100
		if i.MaxDiscount != nil && discount > *i.MaxDiscount {
			discount = *i.MaxDiscount
		}
	case KindFlat:
		discount = i.Value
	}
	return nonNegative(discount)
}

// DiscountAmount is Amount for an optional instrument.
func DiscountAmount(inst *Instrument, subtotal pricing.Money) pricing.Money {
	if inst == nil {
		return 0
	}
	return inst.Amount(subtotal)
}

func nonNegative(m pricing.Money) pricing.Money {
	if m < 0 {
		return 0
	}
	return m
}
