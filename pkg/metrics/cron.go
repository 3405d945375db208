package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var sweepBuckets = []float64{0.05, 0.25, 1, 5, 15, 60, 300}

// CronMetrics tracks the cron-worker's housekeeping sweeps: stale negotiation
// reminders and retention purges.
type CronMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	affected *prometheus.CounterVec
	skipped  prometheus.Counter
}

// NewCronMetrics registers the cron sweep metrics on reg. A nil registerer
// yields a recorder that drops everything.
func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	if reg == nil {
		return &CronMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job runs, by job and outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Wall time of a cron job run.",
		Buckets: sweepBuckets,
	}, []string{"job"})
	affected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_affected_total",
		Help: "Reminders emitted or rows purged by cron jobs.",
	}, []string{"job"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cron_cycles_skipped_total",
		Help: "Cycles skipped because another instance held the leader lease.",
	})
	reg.MustRegister(runs, duration, affected, skipped)
	return &CronMetrics{runs: runs, duration: duration, affected: affected, skipped: skipped}
}

func (c *CronMetrics) ObserveRun(job, outcome string, elapsed time.Duration, affected int64) {
	if c == nil || c.runs == nil {
		return
	}
	if job == "" {
		job = "unknown"
	}
	c.runs.WithLabelValues(job, outcome).Inc()
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if affected > 0 {
		c.affected.WithLabelValues(job).Add(float64(affected))
	}
}

func (c *CronMetrics) IncSkippedCycle() {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.Inc()
}
