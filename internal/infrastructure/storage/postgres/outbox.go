package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
)

// claimLease is how long a fetched message stays hidden from other relay
// workers before it becomes due again.
const claimLease = 30 * time.Second

var outboxColumns = ExtractDBColumns[entity.OutboxMessage]()

// Pending claims up to limit due messages, oldest first. Claimed rows are
// pushed past a short lease so concurrent workers skip them.
func (s *Store) Pending(ctx context.Context, limit int) ([]entity.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := fmt.Sprintf(`
		UPDATE sys_outbox SET next_retry_at = NOW() + $3::interval
		WHERE id IN (
			SELECT id FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, joinColumns(outboxColumns))

	var msgs []entity.OutboxMessage
	lease := fmt.Sprintf("%d milliseconds", claimLease.Milliseconds())
	if err := pgxscan.Select(ctx, s.pool, &msgs, sql, entity.OutboxStatusPending, limit, lease); err != nil {
		return nil, fmt.Errorf("fetch outbox messages: %w", err)
	}
	sortByCreated(msgs)
	return msgs, nil
}

// MarkPublished records a successful delivery.
func (s *Store) MarkPublished(ctx context.Context, msgID id.ID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3
	`, entity.OutboxStatusPublished, s.clock.Now().UTC(), msgID)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkFailed increments the retry count and backs off linearly. After
// entity.MaxOutboxRetries failures the message is parked as failed.
func (s *Store) MarkFailed(ctx context.Context, msgID id.ID, cause error) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = retry_count + 1,
		    last_error = $1,
		    next_retry_at = NOW() + (retry_count + 1) * INTERVAL '1 minute',
		    status = CASE WHEN retry_count + 1 >= $2 THEN $3 ELSE status END
		WHERE id = $4
	`, cause.Error(), entity.MaxOutboxRetries, entity.OutboxStatusFailed, msgID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
