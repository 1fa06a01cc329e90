package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout holds the Prometheus collectors for the checkout flow.
type Checkout struct {
	registry *prometheus.Registry

	OrdersFinalized      prometheus.Counter
	OrderRevenue         prometheus.Counter
	OrderFailures        *prometheus.CounterVec
	PaymentFailures      prometheus.Counter
	ValidationFailures   *prometheus.CounterVec
	CartPersistFailures  prometheus.Counter
	CartSnapshotsCorrupt prometheus.Counter
	AuthVerifications    *prometheus.CounterVec
	AuthLatency          *prometheus.HistogramVec
}

// NewCheckout creates and registers the checkout collectors on a dedicated registry.
func NewCheckout() *Checkout {
	reg := prometheus.NewRegistry()
	m := &Checkout{
		registry: reg,
		OrdersFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_finalized_total",
			Help: "Orders successfully recorded.",
		}),
		OrderRevenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_order_revenue_total",
			Help: "Sum of order totals in the store currency.",
		}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_failures_total",
			Help: "Order finalisation failures by reason.",
		}, []string{"reason"}),
		PaymentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_payment_method_failures_total",
			Help: "Payment method creations rejected by the provider.",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_checkout_validation_failures_total",
			Help: "Checkout step submissions rejected by validation.",
		}, []string{"step"}),
		CartPersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_cart_persist_failures_total",
			Help: "Cart snapshot writes that failed.",
		}),
		CartSnapshotsCorrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_cart_snapshots_corrupt_total",
			Help: "Stored cart snapshots that could not be decoded.",
		}),
		AuthVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_verifications_total",
			Help: "Token verifications by kind, outcome and reason.",
		}, []string{"kind", "outcome", "reason"}),
		AuthLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_auth_verification_seconds",
			Help:    "Latency of token verification.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2},
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.OrdersFinalized,
		m.OrderRevenue,
		m.OrderFailures,
		m.PaymentFailures,
		m.ValidationFailures,
		m.CartPersistFailures,
		m.CartSnapshotsCorrupt,
		m.AuthVerifications,
		m.AuthLatency,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Checkout) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Checkout) Registry() *prometheus.Registry {
	return m.registry
}

// OrderFinalized records a successfully recorded order and its total.
func (m *Checkout) OrderFinalized(total float64) {
	if m == nil {
		return
	}
	m.OrdersFinalized.Inc()
	if total > 0 {
		m.OrderRevenue.Add(total)
	}
}

// OrderFailed records a finalisation failure.
func (m *Checkout) OrderFailed(reason string) {
	if m == nil {
		return
	}
	m.OrderFailures.WithLabelValues(reason).Inc()
}

// PaymentFailed records a rejected payment method.
func (m *Checkout) PaymentFailed() {
	if m == nil {
		return
	}
	m.PaymentFailures.Inc()
}

// ValidationFailed records a rejected step submission.
func (m *Checkout) ValidationFailed(step string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(step).Inc()
}

// CartPersistFailed records a failed cart snapshot write.
func (m *Checkout) CartPersistFailed() {
	if m == nil {
		return
	}
	m.CartPersistFailures.Inc()
}

// CartSnapshotCorrupt records an undecodable cart snapshot.
func (m *Checkout) CartSnapshotCorrupt() {
	if m == nil {
		return
	}
	m.CartSnapshotsCorrupt.Inc()
}

// RecordVerification records a token verification outcome.
func (m *Checkout) RecordVerification(_ context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if success {
		outcome = "accepted"
	}
	m.AuthVerifications.WithLabelValues(kind, outcome, reason).Inc()
	m.AuthLatency.WithLabelValues(kind).Observe(duration.Seconds())
}
