package sequence

import (
	"context"
	"time"

	"storeledger/internal/core/numerator"
)

// Observer receives one call per allocation attempt.
type Observer interface {
	SequenceObserved(counter string, err error, d time.Duration)
}

// Instrumented reports every allocation to an Observer.
type Instrumented struct {
	next numerator.Allocator
	obs  Observer
}

// NewInstrumented wraps next.
func NewInstrumented(next numerator.Allocator, obs Observer) *Instrumented {
	return &Instrumented{next: next, obs: obs}
}

// Next implements numerator.Allocator.
func (i *Instrumented) Next(ctx context.Context, counter string) (int64, error) {
	start := time.Now()
	n, err := i.next.Next(ctx, counter)
	i.obs.SequenceObserved(counter, err, time.Since(start))
	return n, err
}

var _ numerator.Allocator = (*Instrumented)(nil)
