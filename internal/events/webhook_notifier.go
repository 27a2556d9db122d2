package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-checkout/internal/resilience"
)

// WebhookNotifier posts signed events to one subscriber URL. Each event is
// delivered at most once per ReplayTTL; failed deliveries release the guard.
type WebhookNotifier struct {
	HTTP      *resilience.HTTPClient
	URL       string
	Secret    string
	Topics    []string
	Replay    *redis.Client
	ReplayTTL time.Duration
	Now       func() time.Time
}

type webhookBody struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Notify implements Notifier.
func (n WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n.HTTP == nil || n.URL == "" || !n.subscribed(event.Topic) {
		return nil
	}
	ctx, span := otel.Tracer("events.WebhookNotifier").Start(ctx, "WebhookNotifier.Notify")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", event.ID), attribute.String("event.topic", event.Topic))

	if err := ValidateWebhookURL(n.URL); err != nil {
		return err
	}
	body, err := json.Marshal(webhookBody{
		EventID:     event.ID,
		Topic:       event.Topic,
		AggregateID: event.AggregateID,
		Data:        event.Payload,
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		return err
	}

	key := "checkout:webhook:" + event.ID
	if n.Replay != nil && n.ReplayTTL > 0 {
		ok, err := n.Replay.SetNX(ctx, key, "1", n.ReplayTTL).Result()
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("webhook replay guard: %w", err)
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return nil
		}
	}

	if err := n.deliver(ctx, event.ID, body); err != nil {
		span.RecordError(err)
		if n.Replay != nil && n.ReplayTTL > 0 {
			_ = n.Replay.Del(context.WithoutCancel(ctx), key).Err()
		}
		return err
	}
	return nil
}

func (n WebhookNotifier) deliver(ctx context.Context, eventID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	ts := n.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "storefront-checkout-webhooks/1.0")
	req.Header.Set("X-Event-ID", eventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(n.Secret, ts, eventID, body))

	resp, err := n.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deliver webhook: subscriber returned %d", resp.StatusCode)
	}
	return nil
}

func (n WebhookNotifier) subscribed(topic string) bool {
	if len(n.Topics) == 0 {
		return true
	}
	for _, t := range n.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (n WebhookNotifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// ComputeSignature is hex HMAC-SHA256 over "<ts>.<eventID>.<body>".
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateWebhookURL accepts https URLs, and plain http only for localhost.
func ValidateWebhookURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return errors.New("http webhook only allowed for localhost")
	default:
		return errors.New("webhook url must be http or https")
	}
}
