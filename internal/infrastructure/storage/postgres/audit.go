package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/zstd"

	"storeledger/internal/core/clock"
	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Auditor writes commit snapshots. Payloads above the threshold are
// stored zstd-compressed.
type Auditor struct {
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	clock             clock.Clock
}

// NewAuditor creates an auditor compressing payloads over 1KB.
func NewAuditor() (*Auditor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Auditor{
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 1024,
		clock:             clock.System{},
	}, nil
}

func auditCommit(event entity.OutboxEvent) entity.AuditEntry {
	return entity.AuditEntry{
		ID:         event.ID,
		EntityType: event.AggregateType,
		EntityID:   event.AggregateID,
		Action:     entity.AuditActionCommit,
		Changes:    event.Payload,
		CreatedAt:  event.CreatedAt,
	}
}

// compress fills the stored form of entry.Changes.
func (a *Auditor) compress(entry *entity.AuditEntry) {
	entry.CompressionAlgo = entity.CompressionNone
	if len(entry.Changes) > a.compressThreshold {
		entry.ChangesCompressed = a.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = entity.CompressionZstd
	}
}

// Decompress restores Changes of an entry read back from sys_audit.
func (a *Auditor) Decompress(entry *entity.AuditEntry) error {
	if entry.CompressionAlgo != entity.CompressionZstd || len(entry.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := a.decoder.DecodeAll(entry.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	entry.Changes = raw
	entry.ChangesCompressed = nil
	return nil
}

// Record inserts entry through q, which must be the commit transaction.
func (a *Auditor) Record(ctx context.Context, q execer, entry entity.AuditEntry) error {
	if op := appctx.GetOperator(ctx); op != nil && entry.OperatorID == "" {
		entry.OperatorID = op.OperatorID
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.clock.Now().UTC()
	}
	a.compress(&entry)

	_, err := q.Exec(ctx, `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action, operator_id,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action, entry.OperatorID,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	return err
}

// History returns the audit trail of one movement, newest first.
func (s *Store) History(ctx context.Context, ref entity.MovementRef, limit int) ([]entity.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.builder.Select("id", "entity_type", "entity_id", "action", "operator_id",
		"changes", "changes_compressed", "compression_algo", "created_at").
		From("sys_audit").
		Where(squirrel.Eq{"entity_type": "movement", "entity_id": ref.String()}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []entity.AuditEntry
	if err := pgxscan.Select(ctx, s.pool, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for i := range entries {
		if err := s.audit.Decompress(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
