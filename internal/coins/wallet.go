package coins

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/remote"
)

// EarningsToCoins converts affiliate earnings in rupees to coins, rounding down.
func EarningsToCoins(earnings float64) int {
	if earnings <= 0 || math.IsNaN(earnings) || math.IsInf(earnings, 0) {
		return 0
	}
	return int(math.Floor(earnings * PerRupee))
}

// WalletClient reads coin balances from the wallet service.
type WalletClient struct {
	Remote *remote.Client
	Path   string
}

type balanceResponse struct {
	LoyaltyCoins      int     `json:"loyalty_coins"`
	AffiliateEarnings float64 `json:"affiliate_earnings"`
}

// Balance returns loyalty coins plus coins derived from affiliate earnings.
func (w WalletClient) Balance(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("coins: user id is required")
	}
	path := w.Path
	if path == "" {
		path = "/wallet/balance"
	}
	var resp balanceResponse
	if err := w.Remote.GetJSON(ctx, path, url.Values{"user_id": []string{userID}}, &resp); err != nil {
		return 0, err
	}
	loyalty := resp.LoyaltyCoins
	if loyalty < 0 {
		loyalty = 0
	}
	return loyalty + EarningsToCoins(resp.AffiliateEarnings), nil
}
