package coupon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/remote"
)

// Client validates coupon codes against the discount service.
type Client struct {
	Remote *remote.Client
	Path   string
}

type applyRequest struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
}

type applyResponse struct {
	Valid    *bool  `json:"valid"`
	Message  string `json:"message"`
	Discount struct {
		Code           string `json:"code"`
		Type           string `json:"type"`
		Value          any    `json:"value"`
		MaxDiscount    any    `json:"max_discount"`
		DiscountAmount any    `json:"discount_amount"`
	} `json:"discount"`
}

// Apply submits code with the current order amount. Rejections wrap
// ErrInvalidCode; transport and server failures are returned as-is.
func (c Client) Apply(ctx context.Context, code string, amount pricing.Money) (Instrument, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Instrument{}, ErrCodeRequired
	}
	path := c.Path
	if path == "" {
		path = "/discounts/apply"
	}
	var resp applyResponse
	err := c.Remote.PostJSON(ctx, path, applyRequest{Code: code, Amount: pricing.Round2(amount)}, &resp)
	if err != nil {
		if remote.IsStatus(err, http.StatusBadRequest, http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity) {
			return Instrument{}, fmt.Errorf("%s: %w", code, ErrInvalidCode)
		}
		return Instrument{}, err
	}
	if resp.Valid != nil && !*resp.Valid {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = code
		}
		return Instrument{}, fmt.Errorf("%s: %w", msg, ErrInvalidCode)
	}
	kind, ok := ParseKind(resp.Discount.Type)
	if !ok {
		return Instrument{}, errors.New("coupon: discount service returned unknown kind " + resp.Discount.Type)
	}
	inst := Instrument{
		Code:  code,
		Kind:  kind,
		Value: pricing.ParsePrice(resp.Discount.Value),
	}
	if resp.Discount.Code != "" {
		inst.Code = resp.Discount.Code
	}
	if resp.Discount.MaxDiscount != nil {
		if v := pricing.ParsePrice(resp.Discount.MaxDiscount); v > 0 {
			inst.MaxDiscount = &v
		}
	}
	if resp.Discount.DiscountAmount != nil {
		v := pricing.ParsePrice(resp.Discount.DiscountAmount)
		inst.DiscountAmount = &v
	}
	return inst, nil
}
