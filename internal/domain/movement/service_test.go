package movement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/retry"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/movement"
	"storeledger/internal/infrastructure/session"
)

type stubAdapter struct {
	kind entity.MovementKind
	cost *types.Money
}

func (a stubAdapter) Kind() entity.MovementKind { return a.kind }

func (a stubAdapter) PrepareLine(_ context.Context, _ *movement.Handle, in *movement.LineInput) error {
	if in.UnitCost == nil {
		in.UnitCost = a.cost
	}
	return nil
}

func (a stubAdapter) Validate(*movement.Handle) error { return nil }

type countingObserver struct{ retries int }

func (o *countingObserver) RetryObserved(string) { o.retries++ }

// failingSessions fails every Put after the first allowed ones.
type failingSessions struct {
	*session.Memory[movement.Snapshot]
	allowed int
}

func (f *failingSessions) Put(ctx context.Context, key id.ID, s movement.Snapshot) error {
	if f.allowed == 0 {
		return errors.New("session store down")
	}
	f.allowed--
	return f.Memory.Put(ctx, key, s)
}

func newService(e *env, sessions movement.Sessions, obs retry.Observer) *movement.Service {
	return movement.NewService(movement.ServiceConfig{
		Engine:   e.engine,
		Sessions: sessions,
		Adapters: []movement.Adapter{
			stubAdapter{kind: entity.KindPurchase, cost: types.MoneyPtr(types.MustMoney("2"))},
			stubAdapter{kind: entity.KindRejection},
		},
		Retry:    retry.Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 3},
		Observer: obs,
	})
}

func TestService_DraftLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := newService(e, session.NewMemory[movement.Snapshot]("draft", time.Hour, e.clock), nil)

	view, err := svc.CreateDraft(ctx, movement.CreateDraftInput{Kind: entity.KindPurchase, StoreID: "S1", CounterpartyCode: "SUP1"})
	require.NoError(t, err)
	assert.Equal(t, movement.StateDraft, view.State)
	assert.Equal(t, entity.DraftNumber, view.Header.MovementNumber)

	view, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P1", Quantity: 20})
	require.NoError(t, err)
	assert.True(t, types.MustMoney("40").Equal(view.Pending.Amount), "adapter filled the cost")

	res, err := svc.Commit(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), res.MovementNumber)

	_, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P1", Quantity: 15})
	assert.True(t, apperror.IsPrecondition(err))

	view, err = svc.Reopen(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StateReopened, view.State)

	_, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P1", Quantity: 15})
	require.NoError(t, err)
	res, err = svc.Commit(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), res.MovementNumber)
	assert.Equal(t, int64(15), e.qty(t, "P1"))

	view, err = svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StateCommitted, view.State)

	require.NoError(t, svc.Discard(ctx, view.ID))
	_, err = svc.Get(ctx, view.ID)
	assert.True(t, apperror.IsNotFound(err))

	opened, err := svc.Open(ctx, res.Ref)
	require.NoError(t, err)
	assert.Equal(t, movement.StateCommitted, opened.State)
	assert.Len(t, opened.Lines, 1)
}

func TestService_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	obs := &countingObserver{}
	svc := newService(e, session.NewMemory[movement.Snapshot]("draft", 0, nil), obs)

	view, err := svc.CreateDraft(ctx, movement.CreateDraftInput{Kind: entity.KindRejection, StoreID: "S1", CounterpartyCode: "SUP1"})
	require.NoError(t, err)
	_, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P1", Quantity: 4})
	require.NoError(t, err)

	e.store.failNext(2)
	res, err := svc.Commit(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, obs.retries)
	assert.Equal(t, 1, e.alloc.Calls)
	assert.Equal(t, int64(-4), e.qty(t, "P1"))
	assert.Equal(t, int64(-4), movement.NetDelta(res.Deltas))
}

func TestService_GivesUpOnPersistentConflict(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := newService(e, session.NewMemory[movement.Snapshot]("draft", 0, nil), nil)

	view, err := svc.CreateDraft(ctx, movement.CreateDraftInput{Kind: entity.KindPurchase, StoreID: "S1", CounterpartyCode: "SUP1"})
	require.NoError(t, err)
	_, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P1", Quantity: 4})
	require.NoError(t, err)

	e.store.failNext(100)
	_, err = svc.Commit(ctx, view.ID)
	assert.True(t, apperror.IsRetryable(err))
	assert.Equal(t, int64(0), e.qty(t, "P1"))

	// The allocated number survives in the session for the next attempt.
	view, err = svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), view.Header.MovementNumber)
	assert.Equal(t, movement.StateDraft, view.State)

	e.store.failNext(0)
	res, err := svc.Commit(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), res.MovementNumber)
	assert.Equal(t, 1, e.alloc.Calls)
}

func TestService_LostSessionSaveDoesNotDoubleApply(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	// create, upsert and the pre-commit number save succeed; the save after
	// the commit fails.
	sessions := &failingSessions{Memory: session.NewMemory[movement.Snapshot]("draft", 0, nil), allowed: 3}
	svc := newService(e, sessions, nil)

	view, err := svc.CreateDraft(ctx, movement.CreateDraftInput{Kind: entity.KindPurchase, StoreID: "S1", CounterpartyCode: "SUP1"})
	require.NoError(t, err)
	_, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P1", Quantity: 9})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), e.qty(t, "P1"))

	// The stale session still looks like an uncommitted draft.
	sessions.allowed = 10
	res, err := svc.Commit(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), movement.NetDelta(res.Deltas))
	assert.Equal(t, int64(9), e.qty(t, "P1"))
	assert.Equal(t, 1, e.alloc.Calls)
}

func TestService_UnknownKind(t *testing.T) {
	e := newEnv(t)
	svc := newService(e, session.NewMemory[movement.Snapshot]("draft", 0, nil), nil)

	_, err := svc.CreateDraft(context.Background(), movement.CreateDraftInput{Kind: entity.KindDelivery, StoreID: "S1", CounterpartyCode: "S2"})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Receive(context.Background(), "S1", 1)
	assert.True(t, apperror.IsPrecondition(err))
}

// lineCounter reports how many live lines a handle has.
type lineCounter struct{ stubAdapter }

func (lineCounter) Summary(h *movement.Handle) any {
	n := 0
	for _, l := range h.Lines() {
		if !l.Removed {
			n++
		}
	}
	return n
}

func TestService_SummaryOnViewAndResult(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := movement.NewService(movement.ServiceConfig{
		Engine:   e.engine,
		Sessions: session.NewMemory[movement.Snapshot]("draft", time.Hour, e.clock),
		Adapters: []movement.Adapter{
			lineCounter{stubAdapter{kind: entity.KindRejection}},
			stubAdapter{kind: entity.KindPurchase},
		},
	})

	view, err := svc.CreateDraft(ctx, movement.CreateDraftInput{Kind: entity.KindRejection, StoreID: "S1", CounterpartyCode: "SUP1"})
	require.NoError(t, err)
	assert.Equal(t, 0, view.Summary)

	_, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P1", Quantity: 2})
	require.NoError(t, err)
	view, err = svc.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "P2", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Summary)

	view, err = svc.RemoveLine(ctx, view.ID, "P2")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Summary)

	res, err := svc.Commit(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary)

	// Kinds without a summarizer carry none.
	plain, err := svc.CreateDraft(ctx, movement.CreateDraftInput{Kind: entity.KindPurchase, StoreID: "S1", CounterpartyCode: "SUP1"})
	require.NoError(t, err)
	assert.Nil(t, plain.Summary)
}
