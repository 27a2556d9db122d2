package order

import (
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

// Item is one order line as sent to the order service.
type Item struct {
	ProductID   string  `json:"product_id,omitempty"`
	ProductSlug string  `json:"product_slug,omitempty"`
	Title       string  `json:"title"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	MRP         float64 `json:"mrp"`
	Tax         float64 `json:"tax"`
	Total       float64 `json:"total"`
}

// Request is the order-creation payload. Amounts are rounded to two decimals
// here and nowhere earlier.
type Request struct {
	UserID          string                 `json:"user_id,omitempty"`
	Items           []Item                 `json:"items"`
	ShippingAddress Address                `json:"shipping_address"`
	BillingAddress  Address                `json:"billing_address"`
	MRPTotal        float64                `json:"mrp_total"`
	ProductDiscount float64                `json:"product_discount"`
	Subtotal        float64                `json:"subtotal"`
	Shipping        float64                `json:"shipping"`
	Tax             float64                `json:"tax"`
	Total           float64                `json:"total"`
	DiscountAmount  float64                `json:"discount_amount"`
	CouponCode      string                 `json:"coupon_code,omitempty"`
	CoinDiscount    float64                `json:"coin_discount"`
	CoinsUsed       int                    `json:"coins_used"`
	PaymentMethod   settlement.Method      `json:"payment_method"`
	PaymentType     settlement.PaymentType `json:"payment_type"`
	Currency        string                 `json:"currency,omitempty"`
}

// Params carries the non-monetary parts of an order.
type Params struct {
	UserID     string
	Lines      []pricing.LineValuation
	Shipping   Address
	Billing    *Address
	CouponCode string
	Selection  settlement.Selection
	Currency   string
}

// NewRequest shapes a settlement decision into the order-creation payload.
// Billing defaults to the shipping address.
func NewRequest(d settlement.Decision, p Params) Request {
	billing := p.Shipping
	if p.Billing != nil {
		billing = *p.Billing
	}
	items := make([]Item, 0, len(p.Lines))
	for _, l := range p.Lines {
		items = append(items, Item{
			ProductID:   l.Item.ProductID,
			ProductSlug: l.Item.Slug,
			Title:       l.Item.Title,
			Quantity:    l.Item.Quantity,
			Price:       pricing.Round2(l.Item.CurrentPrice),
			MRP:         pricing.Round2(l.MRP),
			Tax:         pricing.Round2(l.Tax),
			Total:       pricing.Round2(l.Total),
		})
	}
	coupon := ""
	if d.CouponDiscount > 0 {
		coupon = p.CouponCode
	}
	return Request{
		UserID:          p.UserID,
		Items:           items,
		ShippingAddress: p.Shipping,
		BillingAddress:  billing,
		MRPTotal:        pricing.Round2(d.MRPTotal),
		ProductDiscount: pricing.Round2(d.ProductDiscount),
		Subtotal:        pricing.Round2(d.Subtotal),
		Shipping:        pricing.Round2(d.Shipping),
		Tax:             pricing.Round2(d.TaxTotal),
		Total:           pricing.Round2(d.GrandTotal),
		DiscountAmount:  pricing.Round2(d.CouponDiscount),
		CouponCode:      coupon,
		CoinDiscount:    pricing.Round2(d.CoinDiscount),
		CoinsUsed:       d.CoinsUsed,
		PaymentMethod:   p.Selection.Method,
		PaymentType:     p.Selection.Type,
		Currency:        p.Currency,
	}
}
