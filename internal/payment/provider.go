package payment

import (
	"context"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// ChargeRequest captures what a gateway needs to open a hosted checkout for an order.
type ChargeRequest struct {
	OrderID  string
	Amount   pricing.Money
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Charge is the handle returned by a gateway, consumed by the hosted checkout UI.
type Charge struct {
	Provider    string `json:"provider"`
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Receipt     string `json:"receipt,omitempty"`
	KeyID       string `json:"keyId,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Provider abstracts an upstream payment gateway.
type Provider interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
}
