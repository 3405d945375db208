package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsLabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	route := "/api/v1/applications/{applicationId}/negotiation"
	m.ObserveRequest("GET", route, 200, 10*time.Millisecond)
	m.ObserveRequest("GET", route, 200, 30*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	family := findMetricFamily(mfs, "http_requests_total")
	require.NotNil(t, family)
	var routed, unmatched float64
	for _, metric := range family.GetMetric() {
		switch {
		case matchesLabel(metric.GetLabel(), "route", route) && matchesLabel(metric.GetLabel(), "status", "200"):
			routed = metric.GetCounter().GetValue()
		case matchesLabel(metric.GetLabel(), "route", "unmatched") && matchesLabel(metric.GetLabel(), "status", "404"):
			unmatched = metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), routed)
	require.Equal(t, float64(1), unmatched)

	sum, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "route", route)
	require.NoError(t, err)
	require.InDelta(t, 0.04, sum, 0.0001)
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	NewHTTPMetrics(nil).ObserveRequest("GET", "/", 200, time.Millisecond)
}
