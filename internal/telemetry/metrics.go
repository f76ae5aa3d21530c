package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module registers checkout core metrics.
var Module = fx.Module("telemetry", fx.Provide(NewMetrics))

// Metrics exposes Prometheus observability primitives for the checkout core.
type Metrics struct {
	checkoutConfirms  *prometheus.CounterVec
	checkoutDuration  *prometheus.HistogramVec
	discountDecisions *prometheus.CounterVec
	loyaltyMutations  *prometheus.CounterVec
	invoiceAmount     prometheus.Histogram
}

// NewMetrics registers and returns Prometheus metrics for the checkout core.
func NewMetrics() *Metrics {
	checkoutConfirms := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_checkout_confirm_total",
		Help: "Counts confirm attempts by payment method and outcome.",
	}, []string{"method", "status"})

	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tally_checkout_confirm_duration_seconds",
		Help:    "Invoice submission latency per payment method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	discountDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_discount_decisions_total",
		Help: "Counts discount evaluations by outcome (applied, pending, rejected reason).",
	}, []string{"outcome"})

	loyaltyMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_loyalty_mutations_total",
		Help: "Counts loyalty point mutations by operation and outcome.",
	}, []string{"operation", "status"})

	invoiceAmount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tally_invoice_amount",
		Help:    "Distribution of confirmed invoice amounts in minor currency units.",
		Buckets: prometheus.ExponentialBuckets(100, 10, 7),
	})

	prometheus.MustRegister(
		checkoutConfirms,
		checkoutDuration,
		discountDecisions,
		loyaltyMutations,
		invoiceAmount,
	)

	return &Metrics{
		checkoutConfirms:  checkoutConfirms,
		checkoutDuration:  checkoutDuration,
		discountDecisions: discountDecisions,
		loyaltyMutations:  loyaltyMutations,
		invoiceAmount:     invoiceAmount,
	}
}

func (m *Metrics) ObserveConfirm(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.checkoutConfirms.WithLabelValues(method, status).Inc()
	m.checkoutDuration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) ObserveDiscountDecision(outcome string) {
	if m == nil {
		return
	}
	m.discountDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLoyaltyMutation(operation, status string) {
	if m == nil {
		return
	}
	m.loyaltyMutations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveInvoiceAmount(amount float64) {
	if m == nil {
		return
	}
	m.invoiceAmount.Observe(amount)
}
