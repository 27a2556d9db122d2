package events_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/resilience"
)

func newWebhookNotifier(t *testing.T, url string) (events.WebhookNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return events.WebhookNotifier{
		HTTP:      &resilience.HTTPClient{Client: http.DefaultClient},
		URL:       url,
		Secret:    "whsec",
		Replay:    client,
		ReplayTTL: time.Hour,
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	}, mr
}

func placedEvent() events.Event {
	return events.Event{
		ID:          "evt-1",
		Topic:       events.TopicOrderPlaced,
		AggregateID: "ord-1",
		Payload:     json.RawMessage(`{"orderId":"ord-1"}`),
		OccurredAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestWebhookNotifierSignsAndDeliversOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		require.NoError(t, err)
		require.Equal(t, "evt-1", r.Header.Get("X-Event-ID"))
		require.Equal(t, events.ComputeSignature("whsec", ts, "evt-1", body), r.Header.Get("X-Signature"))

		var got map[string]any
		require.NoError(t, json.Unmarshal(body, &got))
		require.Equal(t, events.TopicOrderPlaced, got["topic"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, _ := newWebhookNotifier(t, srv.URL)
	require.NoError(t, n.Notify(context.Background(), placedEvent()))
	require.NoError(t, n.Notify(context.Background(), placedEvent()))
	require.EqualValues(t, 1, calls.Load())
}

func TestWebhookNotifierReleasesGuardOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n, mr := newWebhookNotifier(t, srv.URL)
	require.Error(t, n.Notify(context.Background(), placedEvent()))
	require.False(t, mr.Exists("checkout:webhook:evt-1"))
}

func TestWebhookNotifierSkipsUnsubscribedTopics(t *testing.T) {
	n, mr := newWebhookNotifier(t, "https://hooks.example.com/checkout")
	n.Topics = []string{events.TopicPaymentPending}
	require.NoError(t, n.Notify(context.Background(), placedEvent()))
	require.False(t, mr.Exists("checkout:webhook:evt-1"))
}

func TestValidateWebhookURL(t *testing.T) {
	require.NoError(t, events.ValidateWebhookURL("https://hooks.example.com/x"))
	require.NoError(t, events.ValidateWebhookURL("http://localhost:9000/x"))
	require.Error(t, events.ValidateWebhookURL("http://hooks.example.com/x"))
	require.Error(t, events.ValidateWebhookURL("ftp://hooks.example.com"))
}
