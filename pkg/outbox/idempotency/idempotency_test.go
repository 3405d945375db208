package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	keys   map[string]any
	ttls   map[string]time.Duration
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key], f.ttls[key] = value, ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "tp:idempotency:" + scope + ":" + id
}

func newTestManager(t *testing.T, store *fakeStore) *Manager {
	t.Helper()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	manager.now = func() time.Time { return time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC) }
	return manager
}

func TestClaimTakesEventOncePerConsumer(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(t, store)
	eventID := uuid.New()
	ctx := context.Background()

	claimed, err := manager.Claim(ctx, "negotiation-analytics", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = manager.Claim(ctx, "negotiation-analytics", eventID)
	require.NoError(t, err)
	assert.False(t, claimed, "redelivery of a claimed event")

	claimed, err = manager.Claim(ctx, "notifications", eventID)
	require.NoError(t, err)
	assert.True(t, claimed, "each consumer claims separately")

	key := "tp:idempotency:evt:processed:negotiation-analytics:" + eventID.String()
	assert.Equal(t, "2026-05-04T08:00:00Z", store.keys[key])
	assert.Equal(t, 24*time.Hour, store.ttls[key])
}

func TestReleaseLetsRedeliveryRunAgain(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(t, store)
	eventID := uuid.New()
	ctx := context.Background()

	_, err := manager.Claim(ctx, "applications-sync", eventID)
	require.NoError(t, err)
	require.NoError(t, manager.Release(ctx, "applications-sync", eventID))

	claimed, err := manager.Claim(ctx, "applications-sync", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimErrors(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("redis down")
	manager := newTestManager(t, store)

	_, err := manager.Claim(context.Background(), "notifications", uuid.New())
	assert.EqualError(t, err, "redis down")
	_, err = manager.Claim(context.Background(), "", uuid.New())
	assert.EqualError(t, err, "consumer name is required")
	assert.EqualError(t, manager.Release(context.Background(), "notifications", uuid.Nil), "event id is required")

	_, err = NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(store, -time.Second)
	assert.Error(t, err)
}
