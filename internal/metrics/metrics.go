package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type OrderMetrics struct {
	Ops                *prometheus.CounterVec
	LatencyMS          *prometheus.HistogramVec
	SettlementMismatch prometheus.Counter
	ExpiredOrders      prometheus.Counter
}

// NewOrderMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to keep runs independent.
func NewOrderMetrics(reg prometheus.Registerer, service string) *OrderMetrics {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orders",
		Subsystem: service,
		Name:      "operations_total",
		Help:      "Order lifecycle operations by outcome.",
	}, []string{"op", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orders",
		Subsystem: service,
		Name:      "operation_duration_ms",
		Help:      "Order lifecycle operation latency in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"op"})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orders",
		Subsystem: service,
		Name:      "settlement_mismatch_total",
		Help:      "Paid orders whose seller credits did not add up to the buyer debit.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orders",
		Subsystem: service,
		Name:      "expired_total",
		Help:      "Pending orders cancelled by the expiry sweeper.",
	})

	reg.MustRegister(ops, latency, mismatch, expired)
	return &OrderMetrics{Ops: ops, LatencyMS: latency, SettlementMismatch: mismatch, ExpiredOrders: expired}
}

// Observe is safe on a nil receiver so metrics stay optional.
func (m *OrderMetrics) Observe(op, result string, start time.Time) {
	if m == nil {
		return
	}
	m.Ops.WithLabelValues(op, result).Inc()
	m.LatencyMS.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func (m *OrderMetrics) Expired() {
	if m != nil {
		m.ExpiredOrders.Inc()
	}
}

func (m *OrderMetrics) Mismatch() {
	if m != nil {
		m.SettlementMismatch.Inc()
	}
}

func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
