package negotiations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	lockScope       = "negotiation"
	defaultLockWait = 2 * time.Second
	defaultLockTTL  = 10 * time.Second
	defaultLockPoll = 50 * time.Millisecond
)

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// Locker serializes mutations per application. Acquire waits a bounded time
// and then fails with ErrLockTimeout.
type Locker interface {
	Acquire(ctx context.Context, applicationID uuid.UUID) (ReleaseFunc, error)
}

// KeyedMutex is an in-process Locker for single-node deployments and tests.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*keyedSlot
	wait  time.Duration
}

type keyedSlot struct {
	token chan struct{}
	refs  int
}

func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &KeyedMutex{slots: make(map[uuid.UUID]*keyedSlot), wait: wait}
}

func (m *KeyedMutex) Acquire(ctx context.Context, applicationID uuid.UUID) (ReleaseFunc, error) {
	slot := m.ref(applicationID)

	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	select {
	case slot.token <- struct{}{}:
		var once sync.Once
		return func(context.Context) error {
			once.Do(func() {
				<-slot.token
				m.unref(applicationID)
			})
			return nil
		}, nil
	case <-timer.C:
		m.unref(applicationID)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		m.unref(applicationID)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) ref(key uuid.UUID) *keyedSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[key]
	if !ok {
		slot = &keyedSlot{token: make(chan struct{}, 1)}
		m.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (m *KeyedMutex) unref(key uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(m.slots, key)
	}
}

// lockStore is the Redis surface the distributed lock needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker is a Locker shared by every API instance. Each holder writes a
// random owner token with a TTL so a crashed holder cannot block forever.
type RedisLocker struct {
	store lockStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

type RedisLockerParams struct {
	TTL  time.Duration
	Wait time.Duration
	Poll time.Duration
}

func NewRedisLocker(store lockStore, params RedisLockerParams) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for negotiation lock")
	}
	locker := &RedisLocker{store: store, ttl: params.TTL, wait: params.Wait, poll: params.Poll}
	if locker.ttl <= 0 {
		locker.ttl = defaultLockTTL
	}
	if locker.wait <= 0 {
		locker.wait = defaultLockWait
	}
	if locker.poll <= 0 {
		locker.poll = defaultLockPoll
	}
	return locker, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, applicationID uuid.UUID) (ReleaseFunc, error) {
	key := l.store.LockKey(lockScope, applicationID.String())
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire negotiation lock: %w", err)
		}
		if ok {
			return func(releaseCtx context.Context) error {
				if _, err := l.store.CompareAndDelete(releaseCtx, key, owner); err != nil {
					return fmt.Errorf("release negotiation lock: %w", err)
				}
				return nil
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
