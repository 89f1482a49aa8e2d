package memory

import (
	"context"
	"time"

	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
)

// Pending returns up to limit messages due for delivery, oldest first.
func (s *Store) Pending(_ context.Context, limit int) ([]entity.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var out []entity.OutboxMessage
	for _, m := range s.outbox {
		if m.Status != entity.OutboxStatusPending {
			continue
		}
		if m.NextRetryAt != nil && m.NextRetryAt.After(now) {
			continue
		}
		out = append(out, *m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished records a successful delivery.
func (s *Store) MarkPublished(_ context.Context, msgID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.find(msgID); m != nil {
		now := s.clock.Now().UTC()
		m.Status = entity.OutboxStatusPublished
		m.PublishedAt = &now
	}
	return nil
}

// MarkFailed records a failed delivery and schedules the next attempt.
// After entity.MaxOutboxRetries failures the message is parked.
func (s *Store) MarkFailed(_ context.Context, msgID id.ID, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.find(msgID)
	if m == nil {
		return nil
	}
	m.RetryCount++
	msg := cause.Error()
	m.LastError = &msg
	next := s.clock.Now().Add(time.Duration(m.RetryCount) * time.Minute)
	m.NextRetryAt = &next
	if m.RetryCount >= entity.MaxOutboxRetries {
		m.Status = entity.OutboxStatusFailed
	}
	return nil
}

// Outbox returns a copy of every message, for inspection in tests and
// the in-process relay.
func (s *Store) Outbox() []entity.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	return out
}

func (s *Store) find(msgID id.ID) *entity.OutboxMessage {
	for _, m := range s.outbox {
		if m.ID == msgID {
			return m
		}
	}
	return nil
}
