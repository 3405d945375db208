package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the outbox publisher's per-row outcomes.
type OutboxMetrics struct {
	rows    *prometheus.CounterVec
	publish *prometheus.HistogramVec
}

// NewOutboxMetrics registers the outbox publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_rows_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	publish := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Time to get a Pub/Sub acknowledgement per topic.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	reg.MustRegister(rows, publish)
	return &OutboxMetrics{rows: rows, publish: publish}
}

// ObserveRow counts one outbox row as published, retried or dead-lettered.
func (m *OutboxMetrics) ObserveRow(eventType, outcome string) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObservePublish records the publish round trip for one topic.
func (m *OutboxMetrics) ObservePublish(topic string, elapsed time.Duration) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(topic)).Observe(elapsed.Seconds())
}
