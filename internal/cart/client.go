package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/remote"
)

// SubtotalTolerance is the largest gap accepted between the cart owner's
// subtotal and the sum of its line totals.
const SubtotalTolerance = 0.01

// ErrOutOfSync is returned when a cart's subtotal disagrees with its lines.
var ErrOutOfSync = errors.New("cart totals do not match its items, please review your cart")

// Snapshot is the cart as maintained by the cart-state service. Subtotal is
// authoritative for whole-cart checkout.
type Snapshot struct {
	Lines    []pricing.LineItem `json:"items"`
	Subtotal pricing.Money      `json:"subtotal"`
	Tax      pricing.Money      `json:"tax"`
	Total    pricing.Money      `json:"total"`
}

// LinesTotal sums the line totals.
func (s Snapshot) LinesTotal() pricing.Money {
	var sum pricing.Money
	for _, it := range s.Lines {
		sum += pricing.LineTotal(it)
	}
	return sum
}

// Check rejects a snapshot whose subtotal drifted from its lines, which
// happens when prices changed after the cart was last recomputed.
func (s Snapshot) Check() error {
	if len(s.Lines) == 0 {
		return nil
	}
	if math.Abs(s.Subtotal-s.LinesTotal()) > SubtotalTolerance {
		return fmt.Errorf("%w: subtotal %.2f, items %.2f", ErrOutOfSync, s.Subtotal, s.LinesTotal())
	}
	return nil
}

// Client reads the active cart of a user from the cart-state service.
type Client struct {
	Remote *remote.Client
	Path   string
}

// Snapshot loads the user's active cart. A user without a cart gets an empty
// snapshot.
func (c Client) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Snapshot{}, errors.New("cart: user id is required")
	}
	path := c.Path
	if path == "" {
		path = "/carts/active"
	}
	var snap Snapshot
	err := c.Remote.GetJSON(ctx, path, url.Values{"user_id": []string{userID}}, &snap)
	if remote.IsStatus(err, http.StatusNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
