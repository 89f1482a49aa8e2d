package entity

import (
	"time"

	"storeledger/internal/core/id"
)

// Event types written to the outbox.
const (
	EventMovementCommitted = "movement.committed"
	EventCountFixed        = "count.fixed"
	EventCountUnfixed      = "count.unfixed"
)

// OutboxEvent is written in the same transaction as the stock change it
// describes and relayed to the message broker afterwards.
type OutboxEvent struct {
	ID            id.ID     `db:"id" json:"id"`
	AggregateType string    `db:"aggregate_type" json:"aggregateType"`
	AggregateID   string    `db:"aggregate_id" json:"aggregateId"`
	EventType     string    `db:"event_type" json:"eventType"`
	Payload       []byte    `db:"payload" json:"payload"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxRetries is the number of failed deliveries after which a
// message is parked as failed.
const MaxOutboxRetries = 5

// OutboxMessage is an outbox event with its relay bookkeeping.
type OutboxMessage struct {
	OutboxEvent

	Status      OutboxStatus `db:"status" json:"status"`
	RetryCount  int          `db:"retry_count" json:"retryCount"`
	LastError   *string      `db:"last_error" json:"lastError,omitempty"`
	NextRetryAt *time.Time   `db:"next_retry_at" json:"nextRetryAt,omitempty"`
	PublishedAt *time.Time   `db:"published_at" json:"publishedAt,omitempty"`
}
