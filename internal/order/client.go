package order

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/remote"
)

// StatusPendingPayment marks an order whose payment was not completed.
const StatusPendingPayment = "PENDING_PAYMENT"

// Client talks to the order service.
type Client struct {
	Remote *remote.Client
}

// Created is the order service's answer to a create call.
type Created struct {
	ID     string `json:"id"`
	Number string `json:"order_number,omitempty"`
	Status string `json:"status,omitempty"`
}

type createResponse struct {
	ID      string   `json:"id"`
	OrderID string   `json:"order_id"`
	Number  string   `json:"order_number"`
	Status  string   `json:"status"`
	Order   *Created `json:"order"`
}

// Create submits the order and returns its identifier.
func (c Client) Create(ctx context.Context, req Request) (Created, error) {
	var resp createResponse
	if err := c.Remote.PostJSON(ctx, "/orders", req, &resp); err != nil {
		return Created{}, err
	}
	out := Created{ID: resp.ID, Number: resp.Number, Status: resp.Status}
	if out.ID == "" {
		out.ID = resp.OrderID
	}
	if out.ID == "" && resp.Order != nil {
		out = *resp.Order
	}
	if strings.TrimSpace(out.ID) == "" {
		return Created{}, errors.New("order service returned no order id")
	}
	return out, nil
}

// MarkPaymentPending moves the order to the pending-payment state so the
// order service can reconcile it later.
func (c Client) MarkPaymentPending(ctx context.Context, orderID, reason string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order id is required")
	}
	body := map[string]string{"status": StatusPendingPayment, "reason": reason}
	return c.Remote.PatchJSON(ctx, "/orders/"+url.PathEscape(orderID)+"/status", body, nil)
}
