package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNegotiationMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNegotiationMetrics(reg)

	m.ObserveOperation("accept", "ok", 20*time.Millisecond)
	m.ObserveOperation("accept", "ok", 10*time.Millisecond)
	m.ObserveOperation("submit", "invalid_transition", time.Millisecond)
	m.ObserveLockWait(5 * time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	family := findMetricFamily(mfs, "negotiation_operations_total")
	require.NotNil(t, family)
	var okAccepts, rejectedSubmits float64
	for _, metric := range family.GetMetric() {
		switch {
		case matchesLabel(metric.GetLabel(), "operation", "accept") && matchesLabel(metric.GetLabel(), "outcome", "ok"):
			okAccepts = metric.GetCounter().GetValue()
		case matchesLabel(metric.GetLabel(), "operation", "submit") && matchesLabel(metric.GetLabel(), "outcome", "invalid_transition"):
			rejectedSubmits = metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), okAccepts)
	require.Equal(t, float64(1), rejectedSubmits)

	sum, err := fetchHistogramSum(mfs, "negotiation_operation_duration_seconds", "operation", "accept")
	require.NoError(t, err)
	require.InDelta(t, 0.03, sum, 0.0001)

	wait := findMetricFamily(mfs, "negotiation_lock_wait_seconds")
	require.NotNil(t, wait)
	require.Equal(t, uint64(1), wait.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestNegotiationMetricsNilSafe(t *testing.T) {
	var m *NegotiationMetrics
	m.ObserveOperation("submit", "ok", time.Millisecond)
	m.ObserveLockWait(time.Millisecond)

	unregistered := NewNegotiationMetrics(nil)
	unregistered.ObserveOperation("submit", "ok", time.Millisecond)
	unregistered.ObserveLockWait(time.Millisecond)
}
