package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeReserver struct {
	mu    sync.Mutex
	last  map[string]int64
	calls int
	err   error
}

func (f *fakeReserver) Reserve(_ context.Context, counter string, size int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.last == nil {
		f.last = make(map[string]int64)
	}
	f.calls++
	f.last[counter] += size
	return f.last[counter], nil
}

func TestCachedAllocator_ServesRange(t *testing.T) {
	backend := &fakeReserver{}
	a := NewCachedAllocator(backend, 3)
	ctx := context.Background()

	var got []int64
	for i := 0; i < 7; i++ {
		n, err := a.Next(ctx, CounterPurchases)
		require.NoError(t, err)
		got = append(got, n)
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, got)
	assert.Equal(t, 3, backend.calls)
}

func TestCachedAllocator_CountersAreIndependent(t *testing.T) {
	a := NewCachedAllocator(&fakeReserver{}, 10)
	ctx := context.Background()

	p, err := a.Next(ctx, CounterPurchases)
	require.NoError(t, err)
	r, err := a.Next(ctx, CounterRejections)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p)
	assert.Equal(t, int64(1), r)
}

func TestCachedAllocator_BackendError(t *testing.T) {
	a := NewCachedAllocator(&fakeReserver{err: errors.New("down")}, 10)

	_, err := a.Next(context.Background(), CounterPurchases)
	assert.ErrorContains(t, err, "reserve range")
}

func TestCachedAllocator_ConcurrentUnique(t *testing.T) {
	a := NewCachedAllocator(&fakeReserver{}, 4)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			n, err := a.Next(ctx, CounterPurchases)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[n] {
				return errors.New("duplicate number")
			}
			seen[n] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, 50)
}
