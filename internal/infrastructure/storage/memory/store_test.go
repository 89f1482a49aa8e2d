package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/tx"
)

var key = entity.StockKey{StoreID: "S1", ProductID: "P1"}

func quantity(t *testing.T, s *Store, k entity.StockKey) int64 {
	t.Helper()
	txn, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer txn.Rollback(context.Background())

	bal, _, err := txn.GetStock(context.Background(), k)
	require.NoError(t, err)
	return bal.Quantity
}

func TestTxn_WritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New()

	txn, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.ApplyStockDelta(ctx, key, 5))

	// Own writes are visible inside the transaction.
	bal, ok, err := txn.GetStock(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), bal.Quantity)

	assert.Equal(t, int64(0), quantity(t, s, key))

	require.NoError(t, txn.Commit(ctx))
	assert.Equal(t, int64(5), quantity(t, s, key))
}

func TestTxn_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := New()

	txn, _ := s.Begin(ctx)
	require.NoError(t, txn.ApplyStockDelta(ctx, key, 3))
	require.NoError(t, txn.Enqueue(ctx, entity.OutboxEvent{EventType: entity.EventMovementCommitted}))
	require.NoError(t, txn.Rollback(ctx))

	assert.Equal(t, int64(0), quantity(t, s, key))
	assert.Empty(t, s.Outbox())
	assert.ErrorIs(t, txn.Commit(ctx), tx.ErrTxDone)
}

func TestTxn_ConcurrentDeltaConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, _ := s.Begin(ctx)
	b, _ := s.Begin(ctx)
	require.NoError(t, a.ApplyStockDelta(ctx, key, 4))
	require.NoError(t, b.ApplyStockDelta(ctx, key, -1))

	require.NoError(t, a.Commit(ctx))
	err := b.Commit(ctx)
	assert.True(t, apperror.IsRetryable(err))

	assert.Equal(t, int64(4), quantity(t, s, key))
}

func TestTxn_IndependentCountersDoNotConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	other := entity.StockKey{StoreID: "S1", ProductID: "P2"}

	a, _ := s.Begin(ctx)
	b, _ := s.Begin(ctx)
	require.NoError(t, a.ApplyStockDelta(ctx, key, 1))
	require.NoError(t, b.ApplyStockDelta(ctx, other, 1))

	require.NoError(t, a.Commit(ctx))
	require.NoError(t, b.Commit(ctx))
}

func TestTxn_ListDetectsPhantoms(t *testing.T) {
	ctx := context.Background()
	s := New()

	reader, _ := s.Begin(ctx)
	list, err := reader.ListStock(ctx, "S1")
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, reader.PutCount(ctx, &entity.CountHeader{StoreID: "S1"}))

	writer, _ := s.Begin(ctx)
	require.NoError(t, writer.ApplyStockDelta(ctx, key, 2))
	require.NoError(t, writer.Commit(ctx))

	assert.True(t, apperror.IsRetryable(reader.Commit(ctx)))
}

func TestTxn_MovementLines(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref := entity.MovementRef{Kind: entity.KindPurchase, StoreID: "S1", Number: 7}

	txn, _ := s.Begin(ctx)
	require.NoError(t, txn.PutMovementLine(ctx, ref, entity.MovementLine{ProductID: "B", Quantity: 2}))
	require.NoError(t, txn.PutMovementLine(ctx, ref, entity.MovementLine{ProductID: "A", Quantity: 1}))
	require.NoError(t, txn.PutMovement(ctx, &entity.MovementHeader{Kind: ref.Kind, StoreID: "S1", MovementNumber: 7}))
	require.NoError(t, txn.Commit(ctx))

	txn, _ = s.Begin(ctx)
	lines, err := txn.GetMovementLines(ctx, ref)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "A", lines[0].ProductID)

	require.NoError(t, txn.DeleteMovementLine(ctx, ref, "A"))
	lines, err = txn.GetMovementLines(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	h, err := txn.GetMovement(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(7), h.MovementNumber)

	missing, err := txn.GetMovement(ctx, entity.MovementRef{Kind: ref.Kind, StoreID: "S1", Number: 8})
	require.NoError(t, err)
	assert.Nil(t, missing)
}
