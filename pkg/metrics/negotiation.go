package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NegotiationMetrics tracks negotiation operations by outcome.
type NegotiationMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	lockWait   prometheus.Histogram
}

// NewNegotiationMetrics registers the negotiation metrics on the provided registerer.
func NewNegotiationMetrics(reg prometheus.Registerer) *NegotiationMetrics {
	if reg == nil {
		return &NegotiationMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiation_operations_total",
		Help: "Negotiation operations by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "negotiation_operation_duration_seconds",
		Help:    "Duration of negotiation operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "negotiation_lock_wait_seconds",
		Help:    "Time spent waiting for the per-application negotiation lock.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
	reg.MustRegister(operations, duration, lockWait)
	return &NegotiationMetrics{
		operations: operations,
		duration:   duration,
		lockWait:   lockWait,
	}
}

// ObserveOperation counts one finished operation and records how long it took.
func (m *NegotiationMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveLockWait records the time spent acquiring the negotiation lock.
func (m *NegotiationMetrics) ObserveLockWait(elapsed time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(elapsed.Seconds())
}
