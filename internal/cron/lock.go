package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// Lock keeps a single cron worker running jobs per environment.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Refresh extends the hold and reports false once another worker owns the lock.
	Refresh(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lock whose value identifies the holding worker.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

// NewRedisLock builds a lock on key that expires after ttl unless refreshed.
func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	held, err := l.heldByUs(ctx)
	if err != nil {
		return false, err
	}
	if !held {
		l.owner = ""
		return false, nil
	}
	if err := l.store.Set(ctx, l.key, l.owner, l.ttl); err != nil {
		return false, fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	return true, nil
}

// Release deletes the key only while this worker still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	held, err := l.heldByUs(ctx)
	if err != nil {
		return err
	}
	if held {
		if err := l.store.Del(ctx, l.key); err != nil {
			return fmt.Errorf("delete lock %s: %w", l.key, err)
		}
	}
	l.owner = ""
	return nil
}

func (l *RedisLock) heldByUs(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	value, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lock owner %s: %w", l.key, err)
	}
	return value == l.owner, nil
}
