package movement

import (
	"storeledger/internal/core/entity"
	"storeledger/internal/core/types"
)

// Delta is the stock change computed for one unfixed line.
type Delta struct {
	ProductID string `json:"productId"`

	// Prior is the quantity last applied to stock for the product, 0 if
	// it was never committed.
	Prior    int64 `json:"prior"`
	Quantity int64 `json:"quantity"`

	// Delta is sign * (Quantity - Prior).
	Delta int64 `json:"delta"`
}

// ComputeDeltas returns one Delta per unfixed line, in input order.
// prior maps product ids to their last persisted quantity.
func ComputeDeltas(sign int64, unfixed []entity.MovementLine, prior map[string]int64) []Delta {
	out := make([]Delta, 0, len(unfixed))
	for _, line := range unfixed {
		p := prior[line.ProductID]
		out = append(out, Delta{
			ProductID: line.ProductID,
			Prior:     p,
			Quantity:  line.Quantity,
			Delta:     sign * (line.Quantity - p),
		})
	}
	return out
}

// PriorQuantities indexes persisted lines by product.
func PriorQuantities(persisted []entity.MovementLine) map[string]int64 {
	out := make(map[string]int64, len(persisted))
	for _, line := range persisted {
		out[line.ProductID] = line.Quantity
	}
	return out
}

// ComputeTotals aggregates the live lines: not removed and quantity > 0.
// Lines without a unit cost add nothing to the amount.
func ComputeTotals(lines []entity.MovementLine) entity.Totals {
	t := entity.Totals{Amount: types.Zero()}
	for _, line := range lines {
		if line.Removed || line.Quantity <= 0 {
			continue
		}
		t.Variety++
		t.Quantity += line.Quantity
		t.Amount = t.Amount.Add(line.Amount())
	}
	return t
}

// NetDelta sums the deltas.
func NetDelta(deltas []Delta) int64 {
	var n int64
	for _, d := range deltas {
		n += d.Delta
	}
	return n
}
