package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
	"storeledger/internal/infrastructure/storage/memory"
	"storeledger/pkg/logger"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type countingObserver struct {
	ok, failed int
}

func (o *countingObserver) RelayObserved(_ string, err error) {
	if err != nil {
		o.failed++
		return
	}
	o.ok++
}

func seed(t *testing.T, s *memory.Store, events ...entity.OutboxEvent) {
	t.Helper()
	ctx := context.Background()
	txn, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, e := range events {
		require.NoError(t, txn.Enqueue(ctx, e))
	}
	require.NoError(t, txn.Commit(ctx))
}

func TestRelay_PublishesToKafka(t *testing.T) {
	s := memory.New()
	seed(t, s,
		entity.OutboxEvent{AggregateType: "movement", AggregateID: "purchase/S1/7", EventType: entity.EventMovementCommitted, Payload: []byte(`{"n":7}`)},
		entity.OutboxEvent{AggregateType: "count", AggregateID: "c1", EventType: entity.EventCountFixed, Payload: []byte(`{}`)},
	)

	w := &fakeWriter{}
	obs := &countingObserver{}
	r := NewRelay(RelayConfig{Source: s, Sink: NewKafkaSinkWithWriter(w), Observer: obs})

	n, err := r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, obs.ok)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "purchase/S1/7", string(w.msgs[0].Key))
	assert.Equal(t, `{"n":7}`, string(w.msgs[0].Value))
	assert.Equal(t, "event-type", w.msgs[0].Headers[1].Key)
	assert.Equal(t, entity.EventMovementCommitted, string(w.msgs[0].Headers[1].Value))

	for _, m := range s.Outbox() {
		assert.Equal(t, entity.OutboxStatusPublished, m.Status)
	}

	n, err = r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_FailureIsRescheduled(t *testing.T) {
	clk := clock.NewFixed(time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC))
	s := memory.New(memory.WithClock(clk))
	seed(t, s, entity.OutboxEvent{AggregateID: "c1", EventType: entity.EventCountUnfixed})

	w := &fakeWriter{err: errors.New("broker unavailable")}
	obs := &countingObserver{}
	r := NewRelay(RelayConfig{Source: s, Sink: NewKafkaSinkWithWriter(w), Observer: obs})

	n, err := r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, obs.failed)

	msg := s.Outbox()[0]
	assert.Equal(t, entity.OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)
	require.NotNil(t, msg.LastError)
	assert.Contains(t, *msg.LastError, "broker unavailable")

	// Broker is back; the message is due after its backoff.
	w.err = nil
	clk.Advance(2 * time.Minute)
	n, err = r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, w.msgs, 1)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	s := memory.New()
	seed(t, s, entity.OutboxEvent{AggregateID: "x", EventType: entity.EventCountFixed})

	w := &fakeWriter{}
	r := NewRelay(RelayConfig{Source: s, Sink: NewKafkaSinkWithWriter(w), Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return s.Outbox()[0].Status == entity.OutboxStatusPublished
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestLogSink_NeverFails(t *testing.T) {
	s := memory.New()
	seed(t, s, entity.OutboxEvent{AggregateID: "x", EventType: entity.EventCountFixed})

	r := NewRelay(RelayConfig{Source: s, Sink: NewLogSink(logger.NewNop())})
	n, err := r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
