package coins

import (
	"math"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// PerRupee is the fixed exchange rate: 10 coins redeem for ₹1.
const PerRupee = 10

// Notices shown when a coin request was reduced.
const (
	NoticeExceedsBalance = "requested coins exceed available balance"
	NoticeExceedsOrder   = "coins reduced to the order value"
)

// Value converts coins into rupees.
func Value(coins int) pricing.Money {
	return pricing.Money(coins) / PerRupee
}

// Ceiling is the most coins an order can absorb.
func Ceiling(subtotalAfterCoupon pricing.Money) int {
	if subtotalAfterCoupon <= 0 {
		return 0
	}
	return int(math.Ceil(subtotalAfterCoupon * PerRupee))
}

// ClampRequest bounds a requested coin count by the wallet balance and by
// what the order can absorb.
func ClampRequest(requested, available int, subtotalAfterCoupon pricing.Money) int {
	if requested <= 0 || available <= 0 {
		return 0
	}
	return min(requested, available, Ceiling(subtotalAfterCoupon))
}

// DiscountAmount converts requested coins into a rupee discount that never
// exceeds the post-coupon subtotal.
func DiscountAmount(requested int, subtotal, couponDiscount pricing.Money) pricing.Money {
	if requested <= 0 {
		return 0
	}
	limit := subtotal - couponDiscount
	if limit <= 0 {
		return 0
	}
	return min(Value(requested), limit)
}

// Redemption is the coin state of a checkout session.
type Redemption struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}

// Request records a user-entered coin count, clamped.
func (r Redemption) Request(requested int, subtotalAfterCoupon pricing.Money) Redemption {
	r.Requested = ClampRequest(requested, r.Available, subtotalAfterCoupon)
	return r
}

// WithBalance replaces the wallet balance and reclamps the request.
func (r Redemption) WithBalance(available int, subtotalAfterCoupon pricing.Money) Redemption {
	if available < 0 {
		available = 0
	}
	r.Available = available
	return r.Reclamp(subtotalAfterCoupon)
}

// Reclamp re-applies the bounds after a dependency such as the coupon or the
// cart changed.
func (r Redemption) Reclamp(subtotalAfterCoupon pricing.Money) Redemption {
	return r.Request(r.Requested, subtotalAfterCoupon)
}
