// Package retry re-runs operations that lost an optimistic concurrency
// race. Only apperror conflicts are retried; every other error is
// returned on the first occurrence.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"storeledger/internal/core/apperror"
	"storeledger/pkg/logger"
)

// Policy configures exponential backoff between attempts.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxRetries caps the number of retries after the first attempt.
	// Zero means no cap besides MaxElapsedTime.
	MaxRetries uint64
}

// DefaultPolicy returns the policy used by the HTTP layer.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxElapsedTime:  5 * time.Second,
		MaxRetries:      8,
	}
}

// Observer is notified before each retry.
type Observer interface {
	RetryObserved(operation string)
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// policy gives up or ctx is done. fn must redo its reads from scratch on
// every call.
func Do(ctx context.Context, operation string, p Policy, obs Observer, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = p.MaxElapsedTime
	bo.Reset()

	var b backoff.BackOff = bo
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	b = backoff.WithContext(b, ctx)

	op := func() error {
		err := fn(ctx)
		if err == nil || apperror.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "retrying after conflict",
			"operation", operation,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		if obs != nil {
			obs.RetryObserved(operation)
		}
	}

	return backoff.RetryNotify(op, b, notify)
}
