package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutQuotesTotal counts settlement decisions computed, by pricing mode.
	CheckoutQuotesTotal *prometheus.CounterVec
	// CheckoutCouponTotal counts coupon validation outcomes.
	CheckoutCouponTotal *prometheus.CounterVec
	// CheckoutOrdersTotal counts order placement outcomes by payment method.
	CheckoutOrdersTotal *prometheus.CounterVec
	// CheckoutPaymentPendingTotal counts orders left awaiting payment.
	CheckoutPaymentPendingTotal *prometheus.CounterVec
	// PaymentChargeTotal counts gateway charge attempts.
	PaymentChargeTotal *prometheus.CounterVec
	// PaymentChargeLatency records gateway charge latency in milliseconds.
	PaymentChargeLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_quotes_total",
			Help:      "Count of checkout settlement decisions by pricing mode.",
		}, []string{"mode"})
		CheckoutCouponTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_coupon_total",
			Help:      "Count of coupon applications by outcome.",
		}, []string{"result"})
		CheckoutOrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Count of order placements by payment method and outcome.",
		}, []string{"method", "result"})
		CheckoutPaymentPendingTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_payment_pending_total",
			Help:      "Count of orders moved to pending payment.",
		}, []string{"reason"})
		PaymentChargeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_charge_total",
			Help:      "Count of gateway charge attempts by provider and outcome.",
		}, []string{"provider", "result"})
		PaymentChargeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_charge_duration_ms",
			Help:      "Latency for gateway charge creation in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"provider"})

		mustRegisterCollector(reg, CheckoutQuotesTotal, reuseCounterVec(&CheckoutQuotesTotal))
		mustRegisterCollector(reg, CheckoutCouponTotal, reuseCounterVec(&CheckoutCouponTotal))
		mustRegisterCollector(reg, CheckoutOrdersTotal, reuseCounterVec(&CheckoutOrdersTotal))
		mustRegisterCollector(reg, CheckoutPaymentPendingTotal, reuseCounterVec(&CheckoutPaymentPendingTotal))
		mustRegisterCollector(reg, PaymentChargeTotal, reuseCounterVec(&PaymentChargeTotal))
		mustRegisterCollector(reg, PaymentChargeLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PaymentChargeLatency = v
			}
		})
	})
}

// Inc increments vec for labels when the collector has been registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func reuseCounterVec(dst **prometheus.CounterVec) func(prometheus.Collector) {
	return func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			*dst = v
		}
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
