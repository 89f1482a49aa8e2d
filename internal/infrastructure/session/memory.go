// Package session keeps in-progress document handles between API calls.
package session

import (
	"context"
	"sync"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/id"
)

// Memory is a process-local session store. Entries expire ttl after their
// last Put; a zero ttl keeps them forever.
type Memory[S any] struct {
	entity string
	ttl    time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	entries map[id.ID]memoryEntry[S]
}

type memoryEntry[S any] struct {
	value   S
	expires time.Time
}

// NewMemory creates a store. entity names the kept object in not-found
// errors.
func NewMemory[S any](entity string, ttl time.Duration, c clock.Clock) *Memory[S] {
	if c == nil {
		c = clock.System{}
	}
	return &Memory[S]{
		entity:  entity,
		ttl:     ttl,
		clock:   c,
		entries: make(map[id.ID]memoryEntry[S]),
	}
}

// Put stores value under key.
func (m *Memory[S]) Put(_ context.Context, key id.ID, value S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if m.ttl > 0 {
		expires = m.clock.Now().Add(m.ttl)
	}
	m.entries[key] = memoryEntry[S]{value: value, expires: expires}
	return nil
}

// Get returns the value under key.
func (m *Memory[S]) Get(_ context.Context, key id.ID) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if ok && !e.expires.IsZero() && !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		var zero S
		return zero, apperror.NewNotFound(m.entity, key)
	}
	return e.value, nil
}

// Delete removes key. Missing keys are ignored.
func (m *Memory[S]) Delete(_ context.Context, key id.ID) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
