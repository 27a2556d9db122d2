package checkout

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/coins"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

var (
	ErrLineNotFound     = errors.New("item is not part of this checkout")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrUnknownMethod    = errors.New("unknown payment method")
	ErrCoinsDoNotCover  = errors.New("coins do not cover the order total")
	ErrSuperseded       = errors.New("request superseded by a newer change")
	ErrInvalidCoinCount = errors.New("coins must not be negative")
)

// CartTotals are the figures maintained by the cart owner. Only Subtotal is
// used for pricing; Tax and Total are kept for reference.
type CartTotals struct {
	Subtotal pricing.Money `json:"subtotal"`
	Tax      pricing.Money `json:"tax"`
	Total    pricing.Money `json:"total"`
}

// State is everything a checkout session knows. Mutators return a new State
// and never touch the receiver.
type State struct {
	ID         string               `json:"id"`
	UserID     string               `json:"userId"`
	Lines      []pricing.LineItem   `json:"lines"`
	Cart       CartTotals           `json:"cart"`
	BuyNow     string               `json:"buyNow,omitempty"`
	Coupon     *coupon.Instrument   `json:"coupon,omitempty"`
	Coins      coins.Redemption     `json:"coins"`
	Payment    settlement.Selection `json:"payment"`
	CouponSeq  uint64               `json:"couponSeq"`
	BalanceSeq uint64               `json:"balanceSeq"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// NewState validates the cart snapshot and opens a session.
func NewState(id, userID string, lines []pricing.LineItem, cart CartTotals, buyNow string, now time.Time) (State, error) {
	s := State{
		ID:        id,
		UserID:    userID,
		Lines:     append([]pricing.LineItem(nil), lines...),
		Cart:      cart,
		BuyNow:    strings.TrimSpace(buyNow),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, _, err := pricing.SelectLines(s.Lines, s.BuyNow); err != nil {
		return State{}, err
	}
	return s, nil
}

// Totals aggregates the selected lines. A nil lookup is fine: MRP only
// affects display figures, never the subtotal.
func (s State) Totals(lookup pricing.MRPLookup) (pricing.Totals, error) {
	lines, mode, err := pricing.SelectLines(s.Lines, s.BuyNow)
	if err != nil {
		return pricing.Totals{}, err
	}
	return pricing.Aggregate(lines, mode, s.Cart.Subtotal, lookup), nil
}

// Subtotal is the pre-discount subtotal, zero when nothing is selectable.
func (s State) Subtotal() pricing.Money {
	t, err := s.Totals(nil)
	if err != nil {
		return 0
	}
	return t.Subtotal
}

// CouponDiscount is the discount of the active coupon against the subtotal.
func (s State) CouponDiscount() pricing.Money {
	return coupon.DiscountAmount(s.Coupon, s.Subtotal())
}

func (s State) subtotalAfterCoupon() pricing.Money {
	return s.Subtotal() - s.CouponDiscount()
}

// Decide settles the state with lookup used for MRP display figures.
func (s State) Decide(lookup pricing.MRPLookup) (pricing.Totals, settlement.Decision, error) {
	t, err := s.Totals(lookup)
	if err != nil {
		return pricing.Totals{}, settlement.Decision{}, err
	}
	d := settlement.Decide(settlement.Input{
		Totals:         t,
		CouponDiscount: coupon.DiscountAmount(s.Coupon, t.Subtotal),
		RequestedCoins: s.Coins.Requested,
	})
	return t, d.WithSelection(s.Payment), nil
}

// settle reclamps coins and reconciles the payment selection. Every mutator
// ends with it so derived state never lags its inputs.
func (s State) settle() State {
	s.Coins = s.Coins.Reclamp(s.subtotalAfterCoupon())
	if _, d, err := s.Decide(nil); err == nil {
		s.Payment = settlement.Reconcile(s.Payment, d)
	}
	return s
}

func (s State) cloneLines() State {
	s.Lines = append([]pricing.LineItem(nil), s.Lines...)
	return s
}

// WithQuantity changes the quantity of a line. In whole-cart mode the cart
// subtotal moves by the price of the added or removed units, mirroring the
// cart owner's bookkeeping.
func (s State) WithQuantity(productID string, qty int) (State, error) {
	if qty < 1 {
		return s, ErrInvalidQuantity
	}
	s = s.cloneLines()
	for i, it := range s.Lines {
		if it.ProductID != productID && it.Slug != productID {
			continue
		}
		delta := qty - it.Quantity
		s.Lines[i].Quantity = qty
		if s.BuyNow == "" {
			s.Cart.Subtotal += it.CurrentPrice * pricing.Money(delta)
		}
		return s.settle(), nil
	}
	return s, ErrLineNotFound
}

// BeginCoupon starts a coupon submission. The active coupon is dropped and
// the returned ticket must be presented to ResolveCoupon.
func (s State) BeginCoupon() (State, uint64) {
	s.CouponSeq++
	s.Coupon = nil
	return s.settle(), s.CouponSeq
}

// ResolveCoupon applies an accepted coupon if ticket is still current. A
// stale ticket leaves the state untouched and reports false.
func (s State) ResolveCoupon(ticket uint64, inst coupon.Instrument) (State, bool) {
	if ticket != s.CouponSeq {
		return s, false
	}
	s.Coupon = &inst
	return s.settle(), true
}

// RemoveCoupon drops the coupon and invalidates any in-flight submission.
func (s State) RemoveCoupon() State {
	s.CouponSeq++
	s.Coupon = nil
	return s.settle()
}

// RequestCoins records a coin request, clamped to balance and order value.
func (s State) RequestCoins(n int) (State, error) {
	if n < 0 {
		return s, ErrInvalidCoinCount
	}
	s.Coins = s.Coins.Request(n, s.subtotalAfterCoupon())
	return s.settle(), nil
}

// BeginBalance starts a wallet refresh and returns its ticket.
func (s State) BeginBalance() (State, uint64) {
	s.BalanceSeq++
	return s, s.BalanceSeq
}

// ResolveBalance applies a fetched balance if ticket is still current.
func (s State) ResolveBalance(ticket uint64, available int) (State, bool) {
	if ticket != s.BalanceSeq {
		return s, false
	}
	s.Coins = s.Coins.WithBalance(available, s.subtotalAfterCoupon())
	return s.settle(), true
}

// SelectPayment records the user's payment method.
func (s State) SelectPayment(method settlement.Method) (State, error) {
	_, d, err := s.Decide(nil)
	if err != nil {
		return s, err
	}
	switch method {
	case settlement.MethodCOD:
		if !d.CODAllowed() {
			return s, settlement.ErrCODNotAllowed
		}
	case settlement.MethodCoins:
		if !d.CoinOnly {
			return s, ErrCoinsDoNotCover
		}
	case settlement.MethodRazorpay:
	default:
		return s, ErrUnknownMethod
	}
	s.Payment = settlement.Select(method)
	return s.settle(), nil
}
