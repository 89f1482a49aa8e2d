package numerator

import (
	"context"
	"sync"
)

// MockAllocator is a test implementation of Allocator.
// Without NextFunc it counts up from Start per counter.
type MockAllocator struct {
	NextFunc func(ctx context.Context, counter string) (int64, error)
	Start    int64

	mu    sync.Mutex
	last  map[string]int64
	Calls int
}

// Next implements Allocator.
func (m *MockAllocator) Next(ctx context.Context, counter string) (int64, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.NextFunc != nil {
		return m.NextFunc(ctx, counter)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		m.last = make(map[string]int64)
	}
	if _, ok := m.last[counter]; !ok {
		m.last[counter] = m.Start
	}
	m.last[counter]++
	return m.last[counter], nil
}

var _ Allocator = (*MockAllocator)(nil)
