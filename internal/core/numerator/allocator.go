// Package numerator provides the Sequence Allocator contract.
// Backends live in the infrastructure layer.
package numerator

import (
	"context"
	"fmt"
	"sync"
)

// Allocator hands out strictly increasing positive numbers per named
// counter. Each call is atomic on its own. Gaps are acceptable, but a
// number is never returned twice.
type Allocator interface {
	Next(ctx context.Context, counter string) (int64, error)
}

// RangeReserver reserves size consecutive numbers of a counter in one
// atomic step and returns the last number of the reserved range.
type RangeReserver interface {
	Reserve(ctx context.Context, counter string, size int64) (int64, error)
}

// DefaultRangeSize is used by CachedAllocator when none is configured.
const DefaultRangeSize int64 = 50

type cachedRange struct {
	current int64
	max     int64
}

// CachedAllocator serves numbers from ranges reserved in bulk. Numbers
// left in a range when the process exits become gaps.
type CachedAllocator struct {
	backend RangeReserver
	size    int64

	mu     sync.Mutex
	ranges map[string]*cachedRange
}

// NewCachedAllocator creates an allocator reserving size numbers at a time.
func NewCachedAllocator(backend RangeReserver, size int64) *CachedAllocator {
	if size <= 0 {
		size = DefaultRangeSize
	}
	return &CachedAllocator{
		backend: backend,
		size:    size,
		ranges:  make(map[string]*cachedRange),
	}
}

// Next implements Allocator.
func (a *CachedAllocator) Next(ctx context.Context, counter string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rng, ok := a.ranges[counter]
	if !ok {
		rng = &cachedRange{}
		a.ranges[counter] = rng
	}

	if rng.current >= rng.max {
		last, err := a.backend.Reserve(ctx, counter, a.size)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}
		// The reserved range is (last-size, last].
		rng.current = last - a.size
		rng.max = last
	}

	rng.current++
	return rng.current, nil
}

var _ Allocator = (*CachedAllocator)(nil)
