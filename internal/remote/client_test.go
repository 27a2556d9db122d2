package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/remote"
)

func TestClientJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/discounts/apply", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "svc-token", r.Header.Get("X-Service-Token"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "GLOW10", body["code"])
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(srv.Close)

	cl := remote.New(srv.URL+"/", "coupon-service", srv.Client(), 1)
	cl.Header = http.Header{"X-Service-Token": []string{"svc-token"}}

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, cl.PostJSON(context.Background(), "/discounts/apply", map[string]any{"code": "GLOW10"}, &out))
	require.True(t, out.OK)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid code"}`, http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	cl := remote.New(srv.URL, "coupon-service", srv.Client(), 1)
	err := cl.GetJSON(context.Background(), "discounts/GLOW10", nil, &struct{}{})
	require.Error(t, err)
	require.True(t, remote.IsStatus(err, http.StatusUnprocessableEntity))

	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	require.Contains(t, se.Body, "invalid code")
}

func TestClientNotConfigured(t *testing.T) {
	var cl *remote.Client
	_, err := cl.GetRaw(context.Background(), "/catalog.csv")
	require.Error(t, err)
}
