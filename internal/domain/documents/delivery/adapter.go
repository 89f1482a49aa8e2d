// Package delivery adapts the movement engine to delivery shipments, the
// transfer-out side of an inter-store transfer. A committed delivery is
// received at the destination store as a purchase under the same number.
package delivery

import (
	"context"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/domain/documents"
	"storeledger/internal/domain/movement"
	"storeledger/pkg/logger"
)

// Adapter implements movement.Adapter and movement.Receiver.
type Adapter struct {
	engine *movement.Engine
	costs  *documents.CostResolver
}

// New creates the delivery adapter.
func New(engine *movement.Engine, costs *documents.CostResolver) *Adapter {
	return &Adapter{engine: engine, costs: costs}
}

// Kind implements movement.Adapter.
func (a *Adapter) Kind() entity.MovementKind { return entity.KindDelivery }

// PrepareLine resolves a missing unit cost.
func (a *Adapter) PrepareLine(ctx context.Context, h *movement.Handle, in *movement.LineInput) error {
	in.RejectType = ""
	return a.costs.FillCost(ctx, h, in)
}

// Validate requires the destination to be another store.
func (a *Adapter) Validate(h *movement.Handle) error {
	hdr := h.Header()
	if hdr.CounterpartyCode == hdr.StoreID {
		return apperror.NewValidation("delivery destination must be another store").
			WithDetail("field", "counterpartyCode")
	}
	return nil
}

// Receive opens the committed delivery and returns a purchase draft at the
// destination store. The purchase takes over the delivery's number and
// lines; its supplier is the shipping store. Nothing is allocated.
func (a *Adapter) Receive(ctx context.Context, deliveryStoreID string, number int64) (*movement.Handle, error) {
	shipped, err := a.engine.Open(ctx, entity.MovementRef{
		Kind:    entity.KindDelivery,
		StoreID: deliveryStoreID,
		Number:  number,
	})
	if err != nil {
		return nil, err
	}
	hdr := shipped.Header()

	h, err := a.engine.CreateAssigned(entity.KindPurchase, hdr.CounterpartyCode, hdr.StoreID, hdr.MovementNumber)
	if err != nil {
		return nil, err
	}
	for _, line := range shipped.Lines() {
		if err := h.UpsertLine(movement.LineInput{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
		}); err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "delivery received",
		"delivery", hdr.Ref().String(),
		"store_id", hdr.CounterpartyCode,
		"lines", len(shipped.Lines()),
	)
	return h, nil
}

var (
	_ movement.Adapter  = (*Adapter)(nil)
	_ movement.Receiver = (*Adapter)(nil)
)
