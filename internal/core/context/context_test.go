package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetTrace(ctx))
	assert.Empty(t, GetRequestID(ctx))

	tc := NewTraceContext()
	ctx = WithTrace(ctx, tc)
	assert.Equal(t, tc.RequestID, GetRequestID(ctx))
	assert.Len(t, tc.SpanID, 16)
}

func TestOperatorFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetOperatorID(ctx))

	ctx = WithOperator(ctx, &Operator{OperatorID: "op-7", TerminalID: "pos-2"})
	assert.Equal(t, "op-7", GetOperatorID(ctx))
	assert.Equal(t, "pos-2", GetOperator(ctx).TerminalID)
}
