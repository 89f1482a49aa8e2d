// Package memory implements tx.Store in process memory with optimistic
// concurrency control.
//
// Every key carries a version. A transaction remembers the version of
// each key and each collection it read and buffers its writes; Commit
// validates the read set under the store lock and fails with an apperror
// conflict if anything changed since. Nothing a transaction writes is
// visible before Commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/tx"
)

// Store is an in-memory transactional store.
type Store struct {
	mu       sync.Mutex
	data     map[string]any
	versions map[string]uint64
	outbox   []*entity.OutboxMessage
	clock    clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for updated_at and outbox timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		data:     make(map[string]any),
		versions: make(map[string]uint64),
		clock:    clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin implements tx.Store.
func (s *Store) Begin(ctx context.Context) (tx.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Txn{
		store:  s,
		reads:  make(map[string]uint64),
		writes: make(map[string]*write),
	}, nil
}

// Ping implements the readiness check.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// snapshot returns the value and version of key.
func (s *Store) snapshot(key string) (any, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], s.versions[key]
}

// scan returns the keys under collection coll, sorted, with their values
// and the collection version.
func (s *Store) scan(coll string) ([]string, map[string]any, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := coll + sep
	values := make(map[string]any)
	var keys []string
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) && !strings.Contains(k[len(prefix):], sep) {
			keys = append(keys, k)
			values[k] = v
		}
	}
	sort.Strings(keys)
	return keys, values, s.versions[collKey(coll)]
}

// commit validates reads and applies writes atomically.
func (s *Store) commit(t *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seen := range t.reads {
		if s.versions[key] != seen {
			return conflict(key)
		}
	}

	now := s.clock.Now().UTC()
	for key, w := range t.writes {
		if w.deleted {
			delete(s.data, key)
		} else {
			s.data[key] = w.value
		}
		s.versions[key]++
		s.versions[collKey(w.coll)]++
	}

	for i := range t.events {
		ev := t.events[i]
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		s.outbox = append(s.outbox, &entity.OutboxMessage{
			OutboxEvent: ev,
			Status:      entity.OutboxStatusPending,
		})
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

// Key layout. Collections group keys for range reads; a write to a key
// bumps the version of its collection so range readers see phantoms.
const sep = "\x1f"

func collKey(coll string) string { return "#" + coll }

func join(parts ...string) string { return strings.Join(parts, sep) }

func stockColl(storeID string) string { return join("stock", storeID) }

func stockKey(k entity.StockKey) string { return join(stockColl(k.StoreID), k.ProductID) }

func movementKey(ref entity.MovementRef) string {
	return join("mv", string(ref.Kind), ref.StoreID, fmt.Sprint(ref.Number))
}

func lineColl(ref entity.MovementRef) string {
	return join("mvline", string(ref.Kind), ref.StoreID, fmt.Sprint(ref.Number))
}

func countKey(countID id.ID) string { return join("count", countID.String()) }

func countLineColl(countID id.ID) string { return join("countline", countID.String()) }

var _ tx.Store = (*Store)(nil)
