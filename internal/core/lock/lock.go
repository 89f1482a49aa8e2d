// Package lock defines the short-lived mutual exclusion used around
// draft session edits.
package lock

import (
	"context"
	"sync"
	"time"

	"storeledger/internal/core/apperror"
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains locks by key. Obtain fails with an apperror conflict if
// the key is held elsewhere for longer than the caller is willing to wait.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Local is an in-process Locker. The ttl is ignored; locks are held until
// released.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocal creates a process-local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

// Obtain waits for key until ctx is done.
func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return &localLock{owner: l, key: key, done: done}, nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, apperror.NewConflict("lock not obtained").
				WithDetail("key", key).
				WithCause(ctx.Err())
		}
	}
}

type localLock struct {
	owner *Local
	key   string
	done  chan struct{}
	once  sync.Once
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.owner.mu.Unlock()
		close(l.done)
	})
	return nil
}

var _ Locker = (*Local)(nil)
