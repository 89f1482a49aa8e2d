package movement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/numerator"
	"storeledger/internal/core/retry"
	"storeledger/internal/core/tx"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/movement"
	"storeledger/internal/domain/stock"
	"storeledger/internal/infrastructure/storage/memory"
)

// flakyStore aborts the next failures commits after the transaction body
// has buffered all of its writes.
type flakyStore struct {
	*memory.Store

	mu       sync.Mutex
	failures int
}

func (f *flakyStore) failNext(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

func (f *flakyStore) Begin(ctx context.Context) (tx.Transaction, error) {
	txn, err := f.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTxn{Transaction: txn, owner: f}, nil
}

type flakyTxn struct {
	tx.Transaction
	owner *flakyStore
}

func (t *flakyTxn) Commit(ctx context.Context) error {
	t.owner.mu.Lock()
	fail := t.owner.failures > 0
	if fail {
		t.owner.failures--
	}
	t.owner.mu.Unlock()

	if fail {
		_ = t.Transaction.Rollback(ctx)
		return apperror.NewConflict("simulated abort")
	}
	return t.Transaction.Commit(ctx)
}

type env struct {
	mem    *memory.Store
	store  *flakyStore
	stock  *stock.Store
	alloc  *numerator.MockAllocator
	clock  *clock.Fixed
	engine *movement.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.NewFixed(time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC))
	mem := memory.New(memory.WithClock(clk))
	fs := &flakyStore{Store: mem}
	st := stock.NewStore(fs)
	alloc := &numerator.MockAllocator{Start: 1000}
	return &env{
		mem:    mem,
		store:  fs,
		stock:  st,
		alloc:  alloc,
		clock:  clk,
		engine: movement.NewEngine(tx.NewManager(fs), st, alloc, movement.WithClock(clk)),
	}
}

func (e *env) qty(t *testing.T, productID string) int64 {
	t.Helper()
	q, err := e.stock.Get(context.Background(), "S1", productID)
	require.NoError(t, err)
	return q
}

func (e *env) persistedLines(t *testing.T, ref entity.MovementRef) []entity.MovementLine {
	t.Helper()
	txn, err := e.mem.Begin(context.Background())
	require.NoError(t, err)
	defer txn.Rollback(context.Background())
	lines, err := txn.GetMovementLines(context.Background(), ref)
	require.NoError(t, err)
	return lines
}

func (e *env) draft(t *testing.T, kind entity.MovementKind) *movement.Handle {
	t.Helper()
	h, err := e.engine.CreateDraft(kind, "S1", "SUP1")
	require.NoError(t, err)
	return h
}

func set(t *testing.T, h *movement.Handle, productID string, qty int64) {
	t.Helper()
	require.NoError(t, h.UpsertLine(movement.LineInput{ProductID: productID, Quantity: qty}))
}

func commit(t *testing.T, e *env, h *movement.Handle) movement.Result {
	t.Helper()
	res, err := e.engine.Commit(context.Background(), h)
	require.NoError(t, err)
	return res
}

func TestCommit_NetEffectOnly(t *testing.T) {
	for _, tc := range []struct {
		kind entity.MovementKind
		sign int64
	}{
		{entity.KindPurchase, +1},
		{entity.KindRejection, -1},
		{entity.KindInternalOrder, +1},
		{entity.KindDelivery, -1},
	} {
		t.Run(string(tc.kind), func(t *testing.T) {
			e := newEnv(t)
			h := e.draft(t, tc.kind)

			var applied int64
			for _, q := range []int64{5, 8, 3} {
				if h.State() == movement.StateCommitted {
					require.NoError(t, e.engine.Reopen(h))
				}
				set(t, h, "P1", q)
				applied += movement.NetDelta(commit(t, e, h).Deltas)
			}

			assert.Equal(t, tc.sign*3, applied)
			assert.Equal(t, tc.sign*3, e.qty(t, "P1"))
			assert.Equal(t, 1, e.alloc.Calls, "one number per document")
		})
	}
}

func TestCommit_IdempotentRecommit(t *testing.T) {
	e := newEnv(t)
	h := e.draft(t, entity.KindPurchase)
	set(t, h, "P1", 7)
	first := commit(t, e, h)

	again := commit(t, e, h)
	assert.Empty(t, again.Deltas)
	assert.Equal(t, first.Totals, again.Totals)

	require.NoError(t, e.engine.Reopen(h))
	reopened := commit(t, e, h)
	assert.Equal(t, int64(0), movement.NetDelta(reopened.Deltas))
	assert.Equal(t, first.Totals, reopened.Totals)
	assert.Equal(t, int64(7), e.qty(t, "P1"))
}

func TestCommit_UnchangedLineStillFixed(t *testing.T) {
	e := newEnv(t)
	h := e.draft(t, entity.KindPurchase)
	set(t, h, "P1", 5)
	commit(t, e, h)

	require.NoError(t, e.engine.Reopen(h))
	set(t, h, "P1", 5)
	require.Len(t, h.Unfixed(), 1)

	res := commit(t, e, h)
	require.Len(t, res.Deltas, 1)
	assert.Equal(t, int64(0), res.Deltas[0].Delta)
	assert.Empty(t, h.Unfixed())
}

func TestCommit_RemovedThenReadded(t *testing.T) {
	e := newEnv(t)
	h := e.draft(t, entity.KindPurchase)
	set(t, h, "P1", 4)
	res := commit(t, e, h)
	assert.Equal(t, int64(4), e.qty(t, "P1"))

	require.NoError(t, e.engine.Reopen(h))
	require.NoError(t, h.RemoveLine("P1"))
	commit(t, e, h)
	assert.Equal(t, int64(0), e.qty(t, "P1"))
	assert.Empty(t, e.persistedLines(t, res.Ref), "zero quantity line deleted")
	_, kept := h.Line("P1")
	assert.False(t, kept)

	require.NoError(t, e.engine.Reopen(h))
	set(t, h, "P1", 6)
	commit(t, e, h)
	assert.Equal(t, int64(6), e.qty(t, "P1"))
}

func TestCommit_RemoveAndReaddInOneSession(t *testing.T) {
	e := newEnv(t)
	h := e.draft(t, entity.KindRejection)
	set(t, h, "P1", 4)
	commit(t, e, h)

	require.NoError(t, e.engine.Reopen(h))
	require.NoError(t, h.RemoveLine("P1"))
	set(t, h, "P1", 6)
	res := commit(t, e, h)

	require.Len(t, res.Deltas, 1)
	assert.Equal(t, int64(4), res.Deltas[0].Prior, "diffed against the last applied quantity")
	assert.Equal(t, int64(-6), e.qty(t, "P1"))
}

func TestCommit_Scenario(t *testing.T) {
	e := newEnv(t)

	purchase := e.draft(t, entity.KindPurchase)
	require.NoError(t, purchase.UpsertLine(movement.LineInput{
		ProductID: "P1",
		Quantity:  20,
		UnitCost:  types.MoneyPtr(types.MustMoney("100")),
	}))
	res := commit(t, e, purchase)
	assert.Equal(t, int64(1001), res.MovementNumber)
	assert.Equal(t, int64(20), e.qty(t, "P1"))
	assert.True(t, types.MustMoney("2000").Equal(res.Totals.Amount))

	require.NoError(t, e.engine.Reopen(purchase))
	set(t, purchase, "P1", 15)
	res = commit(t, e, purchase)
	assert.Equal(t, int64(1001), res.MovementNumber)
	assert.Equal(t, int64(-5), res.Deltas[0].Delta)
	assert.Equal(t, int64(15), e.qty(t, "P1"))
	assert.True(t, types.MustMoney("1500").Equal(res.Totals.Amount))

	rejection := e.draft(t, entity.KindRejection)
	set(t, rejection, "P1", 4)
	commit(t, e, rejection)
	assert.Equal(t, int64(11), e.qty(t, "P1"))

	events := e.mem.Outbox()
	require.Len(t, events, 3)
	assert.Equal(t, entity.EventMovementCommitted, events[0].EventType)
}

func TestCommit_SequenceFailureLeavesNoTrace(t *testing.T) {
	for name, next := range map[string]func(context.Context, string) (int64, error){
		"error":        func(context.Context, string) (int64, error) { return 0, errors.New("allocator down") },
		"non-positive": func(context.Context, string) (int64, error) { return 0, nil },
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			e.alloc.NextFunc = next
			h := e.draft(t, entity.KindPurchase)
			set(t, h, "P1", 3)

			_, err := e.engine.Commit(context.Background(), h)
			assert.True(t, apperror.IsSequence(err))
			assert.False(t, apperror.IsRetryable(err))

			assert.Equal(t, movement.StateDraft, h.State())
			assert.Equal(t, entity.DraftNumber, h.Header().MovementNumber)
			assert.Len(t, h.Unfixed(), 1)
			assert.Equal(t, int64(0), e.qty(t, "P1"))
			assert.Empty(t, e.mem.Outbox())
		})
	}
}

func TestCommit_ValidationBeforeAllocation(t *testing.T) {
	e := newEnv(t)
	h, err := e.engine.CreateDraft(entity.KindPurchase, "S1", "")
	require.NoError(t, err)
	set(t, h, "P1", 1)

	_, err = e.engine.Commit(context.Background(), h)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, 0, e.alloc.Calls)

	_, err = e.engine.CreateDraft("transfer", "S1", "X")
	assert.True(t, apperror.IsValidation(err))
}

func TestCommit_AbortedAttemptIsInvisible(t *testing.T) {
	e := newEnv(t)
	h := e.draft(t, entity.KindPurchase)
	set(t, h, "P1", 5)
	set(t, h, "P2", 2)

	e.store.failNext(1)
	_, err := e.engine.Commit(context.Background(), h)
	require.True(t, apperror.IsRetryable(err))

	assert.Equal(t, int64(0), e.qty(t, "P1"))
	assert.Equal(t, int64(0), e.qty(t, "P2"))
	assert.Empty(t, e.persistedLines(t, h.Ref()))
	assert.Empty(t, e.mem.Outbox())
	assert.Len(t, h.Unfixed(), 2, "handle untouched by the aborted attempt")
	number := h.Header().MovementNumber
	assert.Equal(t, int64(1001), number, "number cached for the retry")

	res := commit(t, e, h)
	assert.Equal(t, number, res.MovementNumber)
	assert.Equal(t, 1, e.alloc.Calls)
	assert.Equal(t, int64(5), e.qty(t, "P1"))
	assert.Equal(t, int64(2), e.qty(t, "P2"))
	assert.Len(t, e.persistedLines(t, h.Ref()), 2)
	assert.Len(t, e.mem.Outbox(), 1)
}

func TestCommit_ConcurrentMovementsOnOneCounter(t *testing.T) {
	e := newEnv(t)
	const n = 12

	handles := make([]*movement.Handle, n)
	var want int64
	for i := range handles {
		kind := entity.KindPurchase
		if i%3 == 0 {
			kind = entity.KindRejection
		}
		handles[i] = e.draft(t, kind)
		set(t, handles[i], "P1", int64(i+1))
		spec, err := movement.SpecFor(kind)
		require.NoError(t, err)
		want += spec.Sign * int64(i+1)
	}

	policy := retry.Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: 10 * time.Second}
	numbers := make([]int64, n)
	g, ctx := errgroup.WithContext(context.Background())
	for i, h := range handles {
		g.Go(func() error {
			return retry.Do(ctx, "commit", policy, nil, func(ctx context.Context) error {
				res, err := e.engine.Commit(ctx, h)
				numbers[i] = res.MovementNumber
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, want, e.qty(t, "P1"))
	assert.Equal(t, n, e.alloc.Calls, "retries never allocate again")

	seen := map[string]bool{}
	for i, h := range handles {
		key := h.Ref().String()
		assert.False(t, seen[key], "duplicate ref %s", key)
		seen[key] = true
		assert.Positive(t, numbers[i])
	}
}

func TestOpen_ReopenAndAdjust(t *testing.T) {
	e := newEnv(t)
	h := e.draft(t, entity.KindPurchase)
	set(t, h, "P1", 10)
	set(t, h, "P2", 3)
	res := commit(t, e, h)

	opened, err := e.engine.Open(context.Background(), res.Ref)
	require.NoError(t, err)
	assert.Equal(t, movement.StateCommitted, opened.State())
	assert.Len(t, opened.Lines(), 2)
	assert.NotEqual(t, h.ID(), opened.ID())

	require.NoError(t, e.engine.Reopen(opened))
	set(t, opened, "P1", 12)
	res2 := commit(t, e, opened)
	assert.Equal(t, res.MovementNumber, res2.MovementNumber)
	assert.Equal(t, int64(12), e.qty(t, "P1"))
	assert.Equal(t, int64(15), res2.Totals.Quantity)

	_, err = e.engine.Open(context.Background(), entity.MovementRef{Kind: entity.KindPurchase, StoreID: "S1", Number: 99})
	assert.True(t, apperror.IsNotFound(err))
}

func TestCommit_NumberReuseRejected(t *testing.T) {
	e := newEnv(t)
	e.alloc.NextFunc = func(context.Context, string) (int64, error) { return 7, nil }

	a := e.draft(t, entity.KindPurchase)
	set(t, a, "P1", 1)
	commit(t, e, a)

	b := e.draft(t, entity.KindPurchase)
	set(t, b, "P1", 1)
	_, err := e.engine.Commit(context.Background(), b)
	assert.True(t, apperror.IsSequence(err))
	assert.Equal(t, int64(1), e.qty(t, "P1"))
}

func TestCommit_AssignedNumberAlreadyBooked(t *testing.T) {
	e := newEnv(t)

	a, err := e.engine.CreateAssigned(entity.KindPurchase, "S1", "S2", 500)
	require.NoError(t, err)
	set(t, a, "P1", 2)
	commit(t, e, a)
	assert.Equal(t, 0, e.alloc.Calls)

	b, err := e.engine.CreateAssigned(entity.KindPurchase, "S1", "S2", 500)
	require.NoError(t, err)
	set(t, b, "P1", 2)
	_, err = e.engine.Commit(context.Background(), b)
	assert.True(t, apperror.IsPrecondition(err))
	assert.Equal(t, int64(2), e.qty(t, "P1"))
}

func TestCommit_RetryAfterLostAcknowledgement(t *testing.T) {
	e := newEnv(t)
	h := e.draft(t, entity.KindPurchase)
	set(t, h, "P1", 4)

	// A stale copy of the handle, as if the session save after the commit
	// had failed.
	require.NoError(t, e.engine.AssignNumber(context.Background(), h))
	stale := movement.Restore(h.Snapshot())
	commit(t, e, h)

	res, err := e.engine.Commit(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, int64(0), movement.NetDelta(res.Deltas))
	assert.Equal(t, int64(4), e.qty(t, "P1"))
	assert.Equal(t, 1, e.alloc.Calls)
}
