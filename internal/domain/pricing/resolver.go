// Package pricing defines the Price/Cost Resolver consumed by the movement
// adapters to fill in unit costs of new lines.
package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/types"
)

// Query identifies the price to look up. SupplierID is optional.
type Query struct {
	StoreID    string
	ProductID  string
	SupplierID string
}

// Quote is the applicable price data for a query.
type Quote struct {
	// UnitCost is nil when the product has no known cost.
	UnitCost *types.Money `json:"unitCost,omitempty"`
	TaxRate  types.Money  `json:"taxRate"`

	// NoReturn marks suppliers that do not take goods back; rejections
	// against them are recorded as waste.
	NoReturn bool `json:"noReturn"`
}

// Resolver looks up prices. ok is false when nothing matches.
type Resolver interface {
	Lookup(ctx context.Context, q Query) (quote Quote, ok bool, err error)
}

// Writer stores quotes. Leave StoreID or SupplierID of q empty to make the
// quote a fallback for more specific queries.
type Writer interface {
	Put(ctx context.Context, q Query, quote Quote) error
}

// Table is a price source that can also be written.
type Table interface {
	Resolver
	Writer
}

// Static resolves from an in-memory table. The most specific entry wins:
// store+product+supplier, then store+product, then product alone.
type Static struct {
	mu      sync.RWMutex
	entries map[Query]Quote
}

// NewStatic creates an empty table.
func NewStatic() *Static {
	return &Static{entries: make(map[Query]Quote)}
}

// Set stores a quote. Leave fields of q empty to make it a fallback.
func (s *Static) Set(q Query, quote Quote) {
	s.mu.Lock()
	s.entries[q] = quote
	s.mu.Unlock()
}

// Put implements Writer.
func (s *Static) Put(_ context.Context, q Query, quote Quote) error {
	s.Set(q, quote)
	return nil
}

// Lookup implements Resolver.
func (s *Static) Lookup(_ context.Context, q Query) (Quote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := []Query{
		q,
		{StoreID: q.StoreID, ProductID: q.ProductID},
		{ProductID: q.ProductID},
	}
	for _, c := range candidates {
		if quote, ok := s.entries[c]; ok {
			return quote, true, nil
		}
	}
	return Quote{}, false, nil
}

// Cached memoizes another resolver for a fixed time. Misses are cached too.
type Cached struct {
	next  Resolver
	ttl   time.Duration
	clock clock.Clock

	mu      sync.Mutex
	entries map[Query]cachedQuote
}

type cachedQuote struct {
	quote   Quote
	ok      bool
	expires time.Time
}

// NewCached wraps next.
func NewCached(next Resolver, ttl time.Duration, c clock.Clock) *Cached {
	if c == nil {
		c = clock.System{}
	}
	return &Cached{next: next, ttl: ttl, clock: c, entries: make(map[Query]cachedQuote)}
}

// Lookup implements Resolver. Errors are not cached.
func (c *Cached) Lookup(ctx context.Context, q Query) (Quote, bool, error) {
	now := c.clock.Now()

	c.mu.Lock()
	if e, hit := c.entries[q]; hit && now.Before(e.expires) {
		c.mu.Unlock()
		return e.quote, e.ok, nil
	}
	c.mu.Unlock()

	quote, ok, err := c.next.Lookup(ctx, q)
	if err != nil {
		return Quote{}, false, err
	}

	c.mu.Lock()
	c.entries[q] = cachedQuote{quote: quote, ok: ok, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return quote, ok, nil
}

// Put writes through to the wrapped resolver, which must be a Writer, and
// drops every cached entry. A fallback quote can change the answer for
// queries other than q.
func (c *Cached) Put(ctx context.Context, q Query, quote Quote) error {
	w, ok := c.next.(Writer)
	if !ok {
		return fmt.Errorf("price source %T is read-only", c.next)
	}
	if err := w.Put(ctx, q, quote); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = make(map[Query]cachedQuote)
	c.mu.Unlock()
	return nil
}

var (
	_ Table = (*Static)(nil)
	_ Table = (*Cached)(nil)
)
