package sequence

import (
	"context"
	"fmt"
	"sync"

	"storeledger/internal/core/numerator"
)

// Memory is a process-local allocator for development and tests.
type Memory struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemory creates an allocator whose counters start after start.
func NewMemory(start map[string]int64) *Memory {
	m := &Memory{values: make(map[string]int64, len(start))}
	for k, v := range start {
		m.values[k] = v
	}
	return m
}

// Next implements numerator.Allocator.
func (m *Memory) Next(ctx context.Context, counter string) (int64, error) {
	return m.Reserve(ctx, counter, 1)
}

// Reserve implements numerator.RangeReserver.
func (m *Memory) Reserve(_ context.Context, counter string, size int64) (int64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("invalid range size %d", size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[counter] += size
	return m.values[counter], nil
}

var (
	_ numerator.Allocator     = (*Memory)(nil)
	_ numerator.RangeReserver = (*Memory)(nil)
)
