package settlement

import (
	"errors"

	"github.com/noah-isme/storefront-checkout/internal/coins"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

const (
	// CODThreshold is the exclusive upper bound for cash-on-delivery orders.
	CODThreshold pricing.Money = 1000
	// Shipping is flat free shipping.
	Shipping pricing.Money = 0
)

var (
	ErrCODNotAllowed         = errors.New("cash on delivery is only available for orders below ₹1000")
	ErrPaymentMethodRequired = errors.New("select a payment method for the remaining amount")
)

// Class is a payment eligibility class.
type Class string

const (
	ClassDeferred Class = "deferred"
	ClassPrepaid  Class = "prepaid-gateway"
	ClassCoinOnly Class = "coin-only"
)

// Method identifies how an order is paid.
type Method string

const (
	MethodCOD      Method = "cod"
	MethodRazorpay Method = "razorpay"
	MethodCoins    Method = "coins"
)

// PaymentType is what the order service records next to the method.
type PaymentType string

const (
	TypePrepaid PaymentType = "prepaid"
	TypeCOD     PaymentType = "cod"
)

// Selection is the payment choice held by a checkout session.
type Selection struct {
	Method Method      `json:"method"`
	Type   PaymentType `json:"type"`
}

// TypeFor maps a method to its payment type.
func TypeFor(m Method) PaymentType {
	if m == MethodCOD {
		return TypeCOD
	}
	return TypePrepaid
}

// Select builds a selection for m with the matching payment type.
func Select(m Method) Selection {
	if m == "" {
		return Selection{}
	}
	return Selection{Method: m, Type: TypeFor(m)}
}

// Input is everything the settlement step needs.
type Input struct {
	Totals         pricing.Totals
	CouponDiscount pricing.Money
	RequestedCoins int
}

// Decision is the terminal pricing output of a checkout.
type Decision struct {
	MRPTotal              pricing.Money `json:"mrpTotal"`
	ProductDiscount       pricing.Money `json:"productDiscount"`
	Subtotal              pricing.Money `json:"subtotal"`
	TaxTotal              pricing.Money `json:"taxTotal"`
	CouponDiscount        pricing.Money `json:"couponDiscount"`
	CoinDiscount          pricing.Money `json:"coinDiscount"`
	CoinsUsed             int           `json:"coinsUsed"`
	Shipping              pricing.Money `json:"shipping"`
	GrandTotal            pricing.Money `json:"grandTotal"`
	PayableNow            pricing.Money `json:"payableNow"`
	CoinOnly              bool          `json:"coinOnly"`
	EligibleClasses       []Class       `json:"eligibleClasses"`
	RequiresGatewayCharge bool          `json:"requiresGatewayCharge"`
}

// FinalSubtotal is the subtotal after coupon and coin discounts, floored at zero.
func FinalSubtotal(subtotal, couponDiscount, coinDiscount pricing.Money) pricing.Money {
	return max(0, subtotal-couponDiscount-coinDiscount)
}

// Decide settles an order. It is pure: equal inputs give equal decisions.
// RequiresGatewayCharge is left false here because it depends on the selected
// method; see Decision.ChargeRequired.
func Decide(in Input) Decision {
	coupon := max(0, in.CouponDiscount)
	requested := max(0, in.RequestedCoins)
	coinDiscount := coins.DiscountAmount(requested, in.Totals.Subtotal, coupon)
	beforeCoins := in.Totals.Subtotal - coupon

	d := Decision{
		MRPTotal:        in.Totals.MRPTotal,
		ProductDiscount: in.Totals.ProductDiscount,
		Subtotal:        in.Totals.Subtotal,
		TaxTotal:        in.Totals.TaxTotal,
		CouponDiscount:  coupon,
		CoinDiscount:    coinDiscount,
		CoinsUsed:       requested,
		Shipping:        Shipping,
	}
	d.GrandTotal = max(0, FinalSubtotal(d.Subtotal, coupon, coinDiscount)+Shipping)
	d.CoinOnly = requested > 0 && coins.Value(requested) >= beforeCoins
	d.PayableNow = d.GrandTotal
	if d.CoinOnly {
		d.PayableNow = 0
	}
	d.EligibleClasses = eligible(d)
	return d
}

func eligible(d Decision) []Class {
	out := make([]Class, 0, 3)
	if d.CODAllowed() {
		out = append(out, ClassDeferred)
	}
	out = append(out, ClassPrepaid)
	if d.CoinOnly {
		out = append(out, ClassCoinOnly)
	}
	return out
}

// CODAllowed checks the unrounded grand total against the threshold.
func (d Decision) CODAllowed() bool {
	return d.GrandTotal < CODThreshold
}

// Eligible reports whether class c may be used.
func (d Decision) Eligible(c Class) bool {
	for _, e := range d.EligibleClasses {
		if e == c {
			return true
		}
	}
	return false
}

// ChargeRequired reports whether sel needs a hosted gateway charge.
func (d Decision) ChargeRequired(sel Selection) bool {
	if d.CoinOnly || d.PayableNow <= 0 {
		return false
	}
	switch sel.Method {
	case "", MethodCOD, MethodCoins:
		return false
	}
	return true
}

// WithSelection fills RequiresGatewayCharge for sel.
func (d Decision) WithSelection(sel Selection) Decision {
	d.RequiresGatewayCharge = d.ChargeRequired(sel)
	return d
}

// Reconcile adjusts a selection after the decision changed. Coin-only orders
// are recorded as coins and prepaid. An order discounted to zero without
// coins is recorded against the prepaid gateway; ChargeRequired stays false
// for it. When coins stop covering the order a gateway is suggested, and COD
// reverts to the gateway once the total reaches the threshold.
func Reconcile(sel Selection, d Decision) Selection {
	switch {
	case d.CoinOnly:
		return Selection{Method: MethodCoins, Type: TypePrepaid}
	case d.PayableNow <= 0:
		return Select(MethodRazorpay)
	case sel.Method == MethodCoins:
		return Select(MethodRazorpay)
	case sel.Method == MethodCOD && !d.CODAllowed():
		return Select(MethodRazorpay)
	}
	if sel.Method != "" {
		sel.Type = TypeFor(sel.Method)
	}
	return sel
}

// ValidateSelection checks that sel can settle d. Every order other than a
// coin-only one needs a method, even when nothing is left to charge.
func ValidateSelection(sel Selection, d Decision) error {
	if d.CoinOnly {
		return nil
	}
	switch sel.Method {
	case "", MethodCoins:
		return ErrPaymentMethodRequired
	case MethodCOD:
		if !d.CODAllowed() {
			return ErrCODNotAllowed
		}
	}
	return nil
}
