package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rubberops/tapping-backend/pkg/logger"
)

const (
	outboxRetentionDays       = 30
	notificationRetentionDays = 90
)

// PurgeFunc deletes rows older than cutoff and reports how many went.
type PurgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	Purge     PurgeFunc
	Retention int
}

// NewRetentionJob deletes whatever Purge selects once it is older than
// Retention days. Retention falls back to 30 days when unset.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purge == nil {
		return nil, fmt.Errorf("%s: purge func required", params.Name)
	}
	days := params.Retention
	if days <= 0 {
		days = outboxRetentionDays
	}
	return &retentionJob{
		name:  params.Name,
		logg:  params.Logger,
		purge: params.Purge,
		days:  days,
		now:   time.Now,
	}, nil
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob purges published negotiation events. Reminder dedupe
// lives on the proposal row, so purging never re-arms a stale reminder.
func NewOutboxRetentionJob(logg *logger.Logger, repo outboxPurger, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return NewRetentionJob(RetentionJobParams{
		Name:      "outbox-retention",
		Logger:    logg,
		Purge:     repo.DeletePublishedBefore,
		Retention: days,
	})
}

type notificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewNotificationCleanupJob purges notifications read before the window.
// Unread notifications are kept however old they are.
func NewNotificationCleanupJob(logg *logger.Logger, repo notificationPurger, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if days <= 0 {
		days = notificationRetentionDays
	}
	return NewRetentionJob(RetentionJobParams{
		Name:      "notification-cleanup",
		Logger:    logg,
		Purge:     repo.DeleteReadBefore,
		Retention: days,
	})
}

type retentionJob struct {
	name  string
	logg  *logger.Logger
	purge PurgeFunc
	days  int
	now   func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.days)
}

func (j *retentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.cutoff()
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", j.name, err)
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":         cutoff,
			"retention_days": j.days,
		}), "purged expired rows")
	}
	return deleted, nil
}
