package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rubberops/tapping-backend/pkg/logger"
)

const (
	defaultInterval = time.Hour

	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

type cycleObserver interface {
	ObserveRun(job, outcome string, elapsed time.Duration, affected int64)
	IncSkippedCycle()
}

type nopObserver struct{}

func (nopObserver) ObserveRun(string, string, time.Duration, int64) {}
func (nopObserver) IncSkippedCycle()                                 {}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  cycleObserver
	Interval time.Duration
}

// Service sweeps negotiation housekeeping jobs on a fixed cadence. Only the
// instance holding the leader lease runs a cycle, and a failing job does not
// stop the jobs registered after it.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  cycleObserver
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("leader lease required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	var observer cycleObserver = nopObserver{}
	if params.Metrics != nil {
		observer = params.Metrics
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  observer,
		interval: interval,
	}, nil
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type cycleSummary struct {
	led      bool
	ran      int
	failed   []string
	affected int64
}

func (s *Service) runCycle(ctx context.Context) (cycleSummary, error) {
	var summary cycleSummary
	led, err := s.lock.Acquire(ctx)
	if err != nil {
		return summary, fmt.Errorf("acquire leader lease: %w", err)
	}
	if !led {
		s.metrics.IncSkippedCycle()
		fields := map[string]any{"event": "cron.cycle.skipped"}
		if holder, holderErr := s.lock.Holder(ctx); holderErr == nil && holder != "" {
			fields["leader"] = holder
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "another instance leads this cycle")
		return summary, nil
	}
	summary.led = true
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release leader lease", relErr)
		}
	}()

	started := time.Now()
	for _, job := range s.registry.Jobs() {
		affected, jobErr := s.runJob(ctx, job)
		summary.ran++
		summary.affected += affected
		if jobErr != nil {
			summary.failed = append(summary.failed, job.Name())
		}
	}
	cycleCtx := s.logg.WithFields(ctx, map[string]any{
		"event":       "cron.cycle",
		"jobs":        summary.ran,
		"failed_jobs": summary.failed,
		"affected":    summary.affected,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if len(summary.failed) > 0 {
		s.logg.Warn(cycleCtx, "cron cycle finished with failures")
	} else {
		s.logg.Info(cycleCtx, "cron cycle finished")
	}
	return summary, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (int64, error) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"event": "cron.job", "job": job.Name()})
	started := time.Now()
	affected, err := job.Run(jobCtx)
	elapsed := time.Since(started)
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": elapsed.Milliseconds(),
		"affected":    affected,
	})
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeFailed
		s.logg.Error(jobCtx, "cron job failed", err)
	} else {
		s.logg.Debug(jobCtx, "cron job done")
	}
	s.metrics.ObserveRun(job.Name(), outcome, elapsed, affected)
	return affected, err
}
