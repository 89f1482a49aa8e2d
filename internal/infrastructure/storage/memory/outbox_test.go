package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
)

func TestOutbox_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	s := New(WithClock(clk))

	txn, _ := s.Begin(ctx)
	require.NoError(t, txn.Enqueue(ctx, entity.OutboxEvent{AggregateID: "a", EventType: entity.EventCountFixed}))
	require.NoError(t, txn.Enqueue(ctx, entity.OutboxEvent{AggregateID: "b", EventType: entity.EventCountUnfixed}))
	require.NoError(t, txn.Commit(ctx))

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, clk.Now(), pending[0].CreatedAt)

	require.NoError(t, s.MarkPublished(ctx, pending[0].ID))
	require.NoError(t, s.MarkFailed(ctx, pending[1].ID, errors.New("broker down")))

	// The failed message waits for its retry time.
	pending, err = s.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	clk.Advance(2 * time.Minute)
	pending, err = s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "broker down", *pending[0].LastError)
}

func TestOutbox_ParksAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	s := New()

	txn, _ := s.Begin(ctx)
	require.NoError(t, txn.Enqueue(ctx, entity.OutboxEvent{EventType: entity.EventMovementCommitted}))
	require.NoError(t, txn.Commit(ctx))

	msgID := s.Outbox()[0].ID
	for i := 0; i < entity.MaxOutboxRetries; i++ {
		require.NoError(t, s.MarkFailed(ctx, msgID, errors.New("nope")))
	}
	assert.Equal(t, entity.OutboxStatusFailed, s.Outbox()[0].Status)
}
