// Package internalorder adapts the movement engine to internal orders,
// the transfer-in side of an inter-store transfer request.
package internalorder

import (
	"context"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/domain/documents"
	"storeledger/internal/domain/movement"
)

// Adapter implements movement.Adapter for internal orders.
type Adapter struct {
	costs *documents.CostResolver
}

// New creates the internal order adapter.
func New(costs *documents.CostResolver) *Adapter {
	return &Adapter{costs: costs}
}

// Kind implements movement.Adapter.
func (a *Adapter) Kind() entity.MovementKind { return entity.KindInternalOrder }

// PrepareLine resolves a missing unit cost.
func (a *Adapter) PrepareLine(ctx context.Context, h *movement.Handle, in *movement.LineInput) error {
	in.RejectType = ""
	return a.costs.FillCost(ctx, h, in)
}

// Validate rejects orders placed with the ordering store itself.
func (a *Adapter) Validate(h *movement.Handle) error {
	hdr := h.Header()
	if hdr.CounterpartyCode == hdr.StoreID {
		return apperror.NewValidation("internal order counterparty must be another store").
			WithDetail("field", "counterpartyCode")
	}
	return nil
}

var _ movement.Adapter = (*Adapter)(nil)
