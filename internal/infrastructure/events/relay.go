// Package events relays outbox messages written by commit, fix and unfix
// transactions to a message sink.
package events

import (
	"context"
	"fmt"
	"time"

	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/pkg/logger"
)

// Source is the outbox of a storage backend.
type Source interface {
	Pending(ctx context.Context, limit int) ([]entity.OutboxMessage, error)
	MarkPublished(ctx context.Context, msgID id.ID) error
	MarkFailed(ctx context.Context, msgID id.ID, cause error) error
}

// Sink delivers one message. Delivery is at-least-once; consumers dedupe
// on the message id.
type Sink interface {
	Publish(ctx context.Context, msg entity.OutboxMessage) error
}

// Observer receives one call per delivery attempt.
type Observer interface {
	RelayObserved(eventType string, err error)
}

// Relay polls a Source and pushes due messages to a Sink.
type Relay struct {
	source    Source
	sink      Sink
	batchSize int
	interval  time.Duration
	obs       Observer
}

// RelayConfig configures a Relay.
type RelayConfig struct {
	Source    Source
	Sink      Sink
	BatchSize int
	Interval  time.Duration
	Observer  Observer
}

// NewRelay creates a relay. Defaults: batch 100, poll every 500ms.
func NewRelay(cfg RelayConfig) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	return &Relay{
		source:    cfg.Source,
		sink:      cfg.Sink,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		obs:       cfg.Observer,
	}
}

// ProcessBatch delivers one batch and returns the number published.
// A failed delivery is recorded on the message and does not stop the batch.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	msgs, err := r.source.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox messages: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	if appctx.GetTrace(ctx) == nil {
		ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	}

	published := 0
	for _, msg := range msgs {
		err := r.sink.Publish(ctx, msg)
		if r.obs != nil {
			r.obs.RelayObserved(msg.EventType, err)
		}
		if err != nil {
			logger.Warn(ctx, "outbox delivery failed",
				"event_id", msg.ID,
				"event_type", msg.EventType,
				"retry_count", msg.RetryCount,
				"error", err,
			)
			if markErr := r.source.MarkFailed(ctx, msg.ID, err); markErr != nil {
				return published, fmt.Errorf("mark failed %s: %w", msg.ID, markErr)
			}
			continue
		}
		if err := r.source.MarkPublished(ctx, msg.ID); err != nil {
			return published, fmt.Errorf("mark published %s: %w", msg.ID, err)
		}
		published++
	}
	return published, nil
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.ProcessBatch(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error(ctx, "outbox relay batch failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug(ctx, "relayed outbox batch", "count", n)
			}
		}
	}
}
