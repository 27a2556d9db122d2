package order_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/order"
	"github.com/noah-isme/storefront-checkout/internal/remote"
)

func TestClientCreateAndMarkPending(t *testing.T) {
	var statusBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for _, key := range []string{"subtotal", "shipping", "tax", "total", "discount_amount", "coins_used"} {
				_, ok := body[key].(float64)
				require.True(t, ok, key)
			}
			require.Equal(t, "razorpay", body["payment_method"])
			_, _ = w.Write([]byte(`{"order":{"id":"ord-9","status":"PENDING"}}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/orders/ord-9/status":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&statusBody))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	c := order.Client{Remote: remote.New(srv.URL, "order-service", srv.Client(), 1)}
	created, err := c.Create(context.Background(), order.Request{PaymentMethod: "razorpay", PaymentType: "prepaid"})
	require.NoError(t, err)
	require.Equal(t, "ord-9", created.ID)

	require.NoError(t, c.MarkPaymentPending(context.Background(), created.ID, "charge_failed"))
	require.Equal(t, order.StatusPendingPayment, statusBody["status"])
	require.Equal(t, "charge_failed", statusBody["reason"])
}
