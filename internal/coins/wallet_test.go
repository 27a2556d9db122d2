package coins_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/coins"
	"github.com/noah-isme/storefront-checkout/internal/remote"
)

func TestWalletBalanceCombinesLoyaltyAndAffiliate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wallet/balance", r.URL.Path)
		require.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		_, _ = w.Write([]byte(`{"loyalty_coins":250,"affiliate_earnings":42.57}`))
	}))
	t.Cleanup(srv.Close)

	w := coins.WalletClient{Remote: remote.New(srv.URL, "wallet-service", srv.Client(), 1)}
	balance, err := w.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 250+425, balance)
}

func TestWalletBalanceRequiresUser(t *testing.T) {
	_, err := coins.WalletClient{}.Balance(context.Background(), "")
	require.Error(t, err)
}
