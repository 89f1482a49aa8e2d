// Package locking provides the Redis-backed draft lock shared by every
// server replica.
package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/lock"
)

// Redis obtains locks with SET NX PX through redislock.
type Redis struct {
	client  *redislock.Client
	prefix  string
	backoff time.Duration
}

// NewRedis creates a locker. Obtain polls every backoff until the caller's
// context is done.
func NewRedis(client redis.UniversalClient, prefix string, backoff time.Duration) *Redis {
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	return &Redis{client: redislock.New(client), prefix: prefix, backoff: backoff}
}

// Obtain implements lock.Locker.
func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error) {
	l, err := r.client.Obtain(ctx, r.prefix+":"+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	switch {
	case err == nil:
		return &redisLock{l: l}, nil
	case errors.Is(err, redislock.ErrNotObtained),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return nil, apperror.NewConflict("lock not obtained").
			WithDetail("key", key).
			WithCause(err)
	default:
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
}

type redisLock struct {
	l *redislock.Lock
}

// Release is a no-op once the lock expired.
func (r *redisLock) Release(ctx context.Context) error {
	if err := r.l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

var _ lock.Locker = (*Redis)(nil)
