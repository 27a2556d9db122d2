package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/remote"
)

const razorpayDefaultBaseURL = "https://api.razorpay.com"

// Razorpay creates orders through the Razorpay Orders API.
type Razorpay struct {
	Remote *remote.Client
	KeyID  string
}

// NewRazorpay builds a Razorpay provider authenticated with the key pair.
func NewRazorpay(baseURL, keyID, keySecret string, httpClient *http.Client, maxAttempts int) Razorpay {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = razorpayDefaultBaseURL
	}
	client := remote.New(baseURL, "razorpay", httpClient, maxAttempts)
	client.Username = keyID
	client.Password = keySecret
	return Razorpay{Remote: client, KeyID: keyID}
}

// Name implements Provider.
func (Razorpay) Name() string { return "razorpay" }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateCharge opens a Razorpay order for the amount in paise.
func (r Razorpay) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return Charge{}, errors.New("order id is required")
	}
	amount := pricing.MinorUnits(req.Amount)
	if amount <= 0 {
		return Charge{}, errors.New("charge amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = req.OrderID
	}
	notes := map[string]string{"order_id": req.OrderID}
	for k, v := range req.Notes {
		notes[k] = v
	}

	var resp razorpayOrderResponse
	body := razorpayOrderRequest{Amount: amount, Currency: currency, Receipt: receipt, Notes: notes}
	if err := r.Remote.PostJSON(ctx, "/v1/orders", body, &resp); err != nil {
		return Charge{}, err
	}
	if resp.ID == "" {
		return Charge{}, errors.New("razorpay: order id missing in response")
	}
	return Charge{
		Provider: r.Name(),
		ID:       resp.ID,
		Amount:   resp.Amount,
		Currency: resp.Currency,
		Status:   resp.Status,
		Receipt:  resp.Receipt,
		KeyID:    r.KeyID,
	}, nil
}
