// Package documents holds the helpers shared by the per-kind movement
// adapters.
package documents

import (
	"context"
	"fmt"

	"storeledger/internal/domain/movement"
	"storeledger/internal/domain/pricing"
)

// CostResolver fills in unit costs of new lines from the price resolver.
type CostResolver struct {
	prices pricing.Resolver
}

// NewCostResolver creates a CostResolver. A nil resolver disables lookups.
func NewCostResolver(prices pricing.Resolver) *CostResolver {
	return &CostResolver{prices: prices}
}

// Quote looks up the price data for a line of h. ok is false on a miss.
func (r *CostResolver) Quote(ctx context.Context, h *movement.Handle, productID string) (pricing.Quote, bool, error) {
	if r == nil || r.prices == nil {
		return pricing.Quote{}, false, nil
	}
	hdr := h.Header()
	q, ok, err := r.prices.Lookup(ctx, pricing.Query{
		StoreID:    hdr.StoreID,
		ProductID:  productID,
		SupplierID: hdr.CounterpartyCode,
	})
	if err != nil {
		return pricing.Quote{}, false, fmt.Errorf("price lookup %s: %w", productID, err)
	}
	return q, ok, nil
}

// FillCost sets in.UnitCost when it is nil and the line has no cost yet.
// A miss leaves the cost unknown.
func (r *CostResolver) FillCost(ctx context.Context, h *movement.Handle, in *movement.LineInput) error {
	if in.UnitCost != nil {
		return nil
	}
	if line, ok := h.Line(in.ProductID); ok && line.UnitCost != nil {
		return nil
	}
	q, ok, err := r.Quote(ctx, h, in.ProductID)
	if err != nil {
		return err
	}
	if ok && q.UnitCost != nil {
		in.UnitCost = q.UnitCost
	}
	return nil
}
