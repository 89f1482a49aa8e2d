// Package rejection adapts the movement engine to waste and supplier
// returns. Both decrease stock; the reject type only decides which total
// a line is reported under.
package rejection

import (
	"context"

	"storeledger/internal/core/entity"
	"storeledger/internal/domain/documents"
	"storeledger/internal/domain/movement"
)

// Adapter implements movement.Adapter for rejections.
type Adapter struct {
	costs *documents.CostResolver
}

// New creates the rejection adapter.
func New(costs *documents.CostResolver) *Adapter {
	return &Adapter{costs: costs}
}

// Kind implements movement.Adapter.
func (a *Adapter) Kind() entity.MovementKind { return entity.KindRejection }

// PrepareLine classifies a new line. Goods from suppliers that take
// nothing back are waste; everything else is a return.
func (a *Adapter) PrepareLine(ctx context.Context, h *movement.Handle, in *movement.LineInput) error {
	if in.RejectType != "" {
		return nil
	}
	if line, ok := h.Line(in.ProductID); ok && line.RejectType != "" {
		return nil
	}

	q, ok, err := a.costs.Quote(ctx, h, in.ProductID)
	if err != nil {
		return err
	}
	in.RejectType = entity.RejectReturn
	if ok && q.NoReturn {
		in.RejectType = entity.RejectWaste
	}
	return nil
}

// Validate implements movement.Adapter.
func (a *Adapter) Validate(*movement.Handle) error { return nil }

// Summary splits the live lines of a rejection by reject type.
type Summary struct {
	Waste  entity.Totals `json:"waste"`
	Return entity.Totals `json:"return"`
}

// Summarize reports waste and return totals of lines.
func Summarize(lines []entity.MovementLine) Summary {
	var waste, ret []entity.MovementLine
	for _, line := range lines {
		if line.RejectType == entity.RejectWaste {
			waste = append(waste, line)
		} else {
			ret = append(ret, line)
		}
	}
	return Summary{Waste: movement.ComputeTotals(waste), Return: movement.ComputeTotals(ret)}
}

// Summary implements movement.Summarizer.
func (a *Adapter) Summary(h *movement.Handle) any {
	return Summarize(h.Lines())
}

var (
	_ movement.Adapter    = (*Adapter)(nil)
	_ movement.Summarizer = (*Adapter)(nil)
)
