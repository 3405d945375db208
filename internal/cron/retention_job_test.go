package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubberops/tapping-backend/pkg/logger"
)

type purgeRecorder struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *purgeRecorder) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func (p *purgeRecorder) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return p.DeletePublishedBefore(ctx, cutoff)
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func pinClock(t *testing.T, job Job, now time.Time) *retentionJob {
	t.Helper()
	rj, ok := job.(*retentionJob)
	require.True(t, ok, "expected *retentionJob, got %T", job)
	rj.now = func() time.Time { return now }
	return rj
}

func TestOutboxRetentionJobPurgesPastWindow(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	repo := &purgeRecorder{deleted: 7}
	job, err := NewOutboxRetentionJob(discardLogger(), repo, 14)
	require.NoError(t, err)
	pinClock(t, job, now)

	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.Equal(t, "outbox-retention", job.Name())
	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, now.AddDate(0, 0, -14), repo.cutoffs[0])
}

func TestRetentionJobDefaultsPerTable(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	outboxRepo := &purgeRecorder{}
	outboxJob, err := NewOutboxRetentionJob(discardLogger(), outboxRepo, 0)
	require.NoError(t, err)
	pinClock(t, outboxJob, now)
	_, err = outboxJob.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -outboxRetentionDays), outboxRepo.cutoffs[0])

	notificationRepo := &purgeRecorder{}
	cleanupJob, err := NewNotificationCleanupJob(discardLogger(), notificationRepo, 0)
	require.NoError(t, err)
	pinClock(t, cleanupJob, now)
	_, err = cleanupJob.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notification-cleanup", cleanupJob.Name())
	assert.Equal(t, now.AddDate(0, 0, -notificationRetentionDays), notificationRepo.cutoffs[0])
}

func TestRetentionJobWrapsPurgeError(t *testing.T) {
	repo := &purgeRecorder{err: errors.New("db down")}
	job, err := NewNotificationCleanupJob(discardLogger(), repo, 30)
	require.NoError(t, err)

	deleted, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, deleted)
	assert.Contains(t, err.Error(), "notification-cleanup")
}

func TestRetentionJobRequiresDependencies(t *testing.T) {
	_, err := NewOutboxRetentionJob(discardLogger(), nil, 0)
	assert.Error(t, err)
	_, err = NewRetentionJob(RetentionJobParams{Logger: discardLogger(), Purge: (&purgeRecorder{}).DeleteReadBefore})
	assert.Error(t, err, "name is required")
	_, err = NewRetentionJob(RetentionJobParams{Name: "x", Purge: (&purgeRecorder{}).DeleteReadBefore})
	assert.Error(t, err, "logger is required")
}
