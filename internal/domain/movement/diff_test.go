package movement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storeledger/internal/core/entity"
	"storeledger/internal/core/types"
)

func TestComputeDeltas(t *testing.T) {
	unfixed := []entity.MovementLine{
		{ProductID: "P1", Quantity: 8},
		{ProductID: "P2", Quantity: 0, Removed: true},
		{ProductID: "P3", Quantity: 2},
	}
	prior := map[string]int64{"P1": 5, "P2": 4}

	tests := []struct {
		name string
		sign int64
		want []int64
	}{
		{name: "increasing", sign: +1, want: []int64{3, -4, 2}},
		{name: "decreasing", sign: -1, want: []int64{-3, 4, -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltas := ComputeDeltas(tt.sign, unfixed, prior)
			got := make([]int64, 0, len(deltas))
			for _, d := range deltas {
				got = append(got, d.Delta)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, int64(5), deltas[0].Prior)
			assert.Equal(t, int64(0), deltas[2].Prior)
		})
	}
}

func TestComputeDeltas_UnchangedQuantityIsZero(t *testing.T) {
	deltas := ComputeDeltas(+1, []entity.MovementLine{{ProductID: "P1", Quantity: 5}}, map[string]int64{"P1": 5})
	assert.Equal(t, int64(0), deltas[0].Delta)
}

func TestComputeTotals(t *testing.T) {
	cost := types.MoneyPtr(types.MustMoney("2.50"))
	lines := []entity.MovementLine{
		{ProductID: "P1", Quantity: 4, UnitCost: cost},
		{ProductID: "P2", Quantity: 3},
		{ProductID: "P3", Quantity: 0, Removed: true, UnitCost: cost},
		{ProductID: "P4", Quantity: 0},
	}

	got := ComputeTotals(lines)
	assert.Equal(t, 2, got.Variety)
	assert.Equal(t, int64(7), got.Quantity)
	assert.True(t, types.MustMoney("10").Equal(got.Amount))
}
