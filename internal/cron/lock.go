package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 55 * time.Minute

// Lock elects the one cron-worker instance that runs a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	// Holder names the instance leading the current cycle, or "" if none.
	Holder(ctx context.Context) (string, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	LockKey(scope, id string) string
}

// LeaderLease is a per-environment Redis lease. The stored value is
// "<instance>/<cycle token>": the instance part is what Holder reports and
// the token keeps a successor from releasing a lease it does not own.
type LeaderLease struct {
	store    leaseStore
	key      string
	instance string
	ttl      time.Duration
	value    string
}

// NewLeaderLease builds the cron lease for env. A lease left behind by a
// crashed instance expires after ttl.
func NewLeaderLease(store leaseStore, env, instanceID string, ttl time.Duration) (*LeaderLease, error) {
	if store == nil {
		return nil, errors.New("redis client required for cron lease")
	}
	if instanceID == "" {
		return nil, errors.New("instance id required for cron lease")
	}
	if env == "" {
		env = "local"
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &LeaderLease{
		store:    store,
		key:      store.LockKey("cron", env),
		instance: instanceID,
		ttl:      ttl,
	}, nil
}

// Acquire claims the lease for one cycle.
func (l *LeaderLease) Acquire(ctx context.Context) (bool, error) {
	value := l.instance + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, value, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim cron lease: %w", err)
	}
	if ok {
		l.value = value
	}
	return ok, nil
}

// Release drops the lease if this cycle still owns it.
func (l *LeaderLease) Release(ctx context.Context) error {
	if l.value == "" {
		return nil
	}
	value := l.value
	l.value = ""
	if _, err := l.store.CompareAndDelete(ctx, l.key, value); err != nil {
		return fmt.Errorf("release cron lease: %w", err)
	}
	return nil
}

func (l *LeaderLease) Holder(ctx context.Context) (string, error) {
	value, err := l.store.Get(ctx, l.key)
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cron lease: %w", err)
	}
	instance, _, _ := strings.Cut(value, "/")
	return instance, nil
}
