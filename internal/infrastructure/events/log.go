package events

import (
	"context"

	"storeledger/internal/core/entity"
	"storeledger/pkg/logger"
)

// LogSink writes every message to the log. Used when no broker is
// configured.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink logging through log.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("outbox")}
}

// Publish implements Sink.
func (s *LogSink) Publish(_ context.Context, msg entity.OutboxMessage) error {
	s.log.Infow("outbox event",
		"event_id", msg.ID,
		"event_type", msg.EventType,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"payload", string(msg.Payload),
	)
	return nil
}
