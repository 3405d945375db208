package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rubberops/tapping-backend/pkg/logger"
)

const (
	defaultStaleAfter = 72 * time.Hour
	defaultStaleBatch = 200
)

type StaleNegotiationsJobParams struct {
	Logger     *logger.Logger
	Reminders  staleReminderEmitter
	StaleAfter time.Duration
	BatchSize  int
}

type staleReminderEmitter interface {
	EmitStaleReminders(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewStaleNegotiationsJob nudges the party that has left a proposal unanswered
// longer than StaleAfter. Each pending proposal is reminded at most once.
func NewStaleNegotiationsJob(params StaleNegotiationsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reminders == nil {
		return nil, fmt.Errorf("negotiation service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &staleNegotiationsJob{
		logg:       params.Logger,
		reminders:  params.Reminders,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type staleNegotiationsJob struct {
	logg       *logger.Logger
	reminders  staleReminderEmitter
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *staleNegotiationsJob) Name() string { return "stale-negotiations" }

// Run emits at most one batch per cycle. A full batch means more proposals
// are waiting; they are picked up on the next tick.
func (j *staleNegotiationsJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	emitted, err := j.reminders.EmitStaleReminders(ctx, cutoff, j.batch)
	if err != nil {
		return 0, fmt.Errorf("stale negotiations: %w", err)
	}
	if emitted == j.batch {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"cutoff":      cutoff,
			"stale_after": j.staleAfter.String(),
			"batch":       j.batch,
		}), "stale reminder batch full, backlog carries to next cycle")
	}
	return int64(emitted), nil
}
