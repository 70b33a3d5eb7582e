package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type ClientMetrics struct {
	BackendRequests  *prometheus.CounterVec
	BackendLatencyMS *prometheus.HistogramVec
	CartSyncs        *prometheus.CounterVec
	PaymentPolls     prometheus.Counter
	PaymentOutcomes  *prometheus.CounterVec
}

// NewClientMetrics registers the client collectors on reg. A nil reg gets a
// fresh registry so tests can build as many instances as they like.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &ClientMetrics{
		BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Requests sent to the shop backend.",
		}, []string{"operation", "status"}),
		BackendLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_ms",
			Help:      "Backend request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation"}),
		CartSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "syncs_total",
			Help:      "Cart reconciliations by outcome.",
		}, []string{"outcome"}),
		PaymentPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "polls_total",
			Help:      "Transaction status polls.",
		}),
		PaymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "outcomes_total",
			Help:      "Payment attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.BackendRequests, m.BackendLatencyMS, m.CartSyncs, m.PaymentPolls, m.PaymentOutcomes)
	return m
}

func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
