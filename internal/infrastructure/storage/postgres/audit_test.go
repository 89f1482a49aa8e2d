package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/entity"
)

type captureExec struct {
	sql  string
	args []any
}

func (c *captureExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql = sql
	c.args = args
	return pgconn.CommandTag{}, nil
}

func TestAuditor_SmallPayloadStaysPlain(t *testing.T) {
	a, err := NewAuditor()
	require.NoError(t, err)

	q := &captureExec{}
	ctx := appctx.WithOperator(context.Background(), &appctx.Operator{OperatorID: "op-7"})
	event := entity.OutboxEvent{AggregateType: "movement", AggregateID: "purchase/S1/3", EventType: entity.EventMovementCommitted, Payload: []byte(`{"n":3}`)}

	require.NoError(t, a.Record(ctx, q, auditCommit(event)))
	assert.Contains(t, q.sql, "INSERT INTO sys_audit")
	assert.Equal(t, "op-7", q.args[4])
	assert.Equal(t, entity.CompressionNone, q.args[7])
}

func TestAuditor_LargePayloadRoundTrip(t *testing.T) {
	a, err := NewAuditor()
	require.NoError(t, err)

	lines := make([]map[string]any, 200)
	for i := range lines {
		lines[i] = map[string]any{"productId": "P", "delta": i}
	}
	payload, err := json.Marshal(lines)
	require.NoError(t, err)

	entry := entity.AuditEntry{Changes: payload}
	a.compress(&entry)
	require.Equal(t, entity.CompressionZstd, entry.CompressionAlgo)
	assert.Nil(t, entry.Changes)
	assert.Less(t, len(entry.ChangesCompressed), len(payload))

	require.NoError(t, a.Decompress(&entry))
	assert.True(t, bytes.Equal(payload, entry.Changes))
}
