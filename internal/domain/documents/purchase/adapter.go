// Package purchase adapts the movement engine to purchase receipts.
// Received quantities increase stock.
package purchase

import (
	"context"

	"storeledger/internal/core/entity"
	"storeledger/internal/domain/documents"
	"storeledger/internal/domain/movement"
)

// Adapter implements movement.Adapter for purchases.
type Adapter struct {
	costs *documents.CostResolver
}

// New creates the purchase adapter.
func New(costs *documents.CostResolver) *Adapter {
	return &Adapter{costs: costs}
}

// Kind implements movement.Adapter.
func (a *Adapter) Kind() entity.MovementKind { return entity.KindPurchase }

// PrepareLine resolves a missing unit cost.
func (a *Adapter) PrepareLine(ctx context.Context, h *movement.Handle, in *movement.LineInput) error {
	in.RejectType = ""
	return a.costs.FillCost(ctx, h, in)
}

// Validate implements movement.Adapter. Purchases need nothing beyond the
// common header checks.
func (a *Adapter) Validate(*movement.Handle) error { return nil }

var _ movement.Adapter = (*Adapter)(nil)
