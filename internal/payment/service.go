package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// Service wraps a Provider with tracing and metrics.
type Service struct {
	Provider Provider
	Currency string
}

// Charge opens a gateway charge for the order.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if s == nil || s.Provider == nil {
		return Charge{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Charge")
	defer span.End()

	providerName := normaliseLabel(s.Provider.Name())
	if req.Currency == "" {
		req.Currency = s.Currency
	}
	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.String("order.id", req.OrderID),
			attribute.Float64("payment.amount", pricing.Round2(req.Amount)),
			attribute.String("payment.charge.result", result),
		)
		obs.Inc(obs.PaymentChargeTotal, providerName, result)
		if obs.PaymentChargeLatency != nil {
			obs.PaymentChargeLatency.WithLabelValues(providerName).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	charge, err := s.Provider.CreateCharge(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "charge failed")
		return Charge{}, err
	}
	result = "success"
	return charge, nil
}

func normaliseLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
