package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/types"
)

func TestStatic_MostSpecificWins(t *testing.T) {
	r := NewStatic()
	r.Set(Query{ProductID: "P1"}, Quote{UnitCost: types.MoneyPtr(types.MustMoney("1.00"))})
	r.Set(Query{StoreID: "S1", ProductID: "P1"}, Quote{UnitCost: types.MoneyPtr(types.MustMoney("2.00"))})
	r.Set(Query{StoreID: "S1", ProductID: "P1", SupplierID: "ACME"}, Quote{NoReturn: true})

	q, ok, err := r.Lookup(context.Background(), Query{StoreID: "S1", ProductID: "P1", SupplierID: "ACME"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, q.NoReturn)

	q, ok, _ = r.Lookup(context.Background(), Query{StoreID: "S1", ProductID: "P1", SupplierID: "OTHER"})
	require.True(t, ok)
	assert.Equal(t, "2", q.UnitCost.String())

	q, ok, _ = r.Lookup(context.Background(), Query{StoreID: "S2", ProductID: "P1"})
	require.True(t, ok)
	assert.Equal(t, "1", q.UnitCost.String())

	_, ok, _ = r.Lookup(context.Background(), Query{StoreID: "S2", ProductID: "P9"})
	assert.False(t, ok)
}

type countingResolver struct {
	calls int
	err   error
}

func (c *countingResolver) Lookup(context.Context, Query) (Quote, bool, error) {
	c.calls++
	if c.err != nil {
		return Quote{}, false, c.err
	}
	return Quote{NoReturn: true}, true, nil
}

func TestCached_ExpiresAfterTTL(t *testing.T) {
	clk := clock.NewFixed(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	next := &countingResolver{}
	r := NewCached(next, time.Minute, clk)
	q := Query{StoreID: "S1", ProductID: "P1"}

	for i := 0; i < 3; i++ {
		_, ok, err := r.Lookup(context.Background(), q)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, next.calls)

	clk.Advance(2 * time.Minute)
	_, _, _ = r.Lookup(context.Background(), q)
	assert.Equal(t, 2, next.calls)
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	next := &countingResolver{err: errors.New("price service down")}
	r := NewCached(next, time.Minute, nil)

	_, _, err := r.Lookup(context.Background(), Query{ProductID: "P1"})
	require.Error(t, err)
	_, _, _ = r.Lookup(context.Background(), Query{ProductID: "P1"})
	assert.Equal(t, 2, next.calls)
}

func TestCached_PutWritesThroughAndFlushes(t *testing.T) {
	ctx := context.Background()
	table := NewStatic()
	r := NewCached(table, time.Hour, nil)

	_, ok, err := r.Lookup(ctx, Query{StoreID: "S1", ProductID: "P1"})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.Put(ctx, Query{ProductID: "P1"}, Quote{NoReturn: true}))

	// The cached miss for the store-level query is gone.
	q, ok, err := r.Lookup(ctx, Query{StoreID: "S1", ProductID: "P1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, q.NoReturn)
}

func TestCached_PutOnReadOnlySource(t *testing.T) {
	r := NewCached(&countingResolver{}, time.Minute, nil)
	assert.Error(t, r.Put(context.Background(), Query{ProductID: "P1"}, Quote{}))
}
