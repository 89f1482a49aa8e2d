package movement

import (
	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/numerator"
)

// KindSpec describes how a movement kind affects stock and where its
// numbers come from.
type KindSpec struct {
	Kind entity.MovementKind

	// Sign is +1 for stock-increasing kinds and -1 for stock-decreasing
	// kinds. It is uniform for every line of the kind.
	Sign int64

	// Counter is the sequence the movement number is allocated from.
	Counter string
}

var kinds = map[entity.MovementKind]KindSpec{
	entity.KindPurchase:      {Kind: entity.KindPurchase, Sign: +1, Counter: numerator.CounterPurchases},
	entity.KindRejection:     {Kind: entity.KindRejection, Sign: -1, Counter: numerator.CounterRejections},
	entity.KindInternalOrder: {Kind: entity.KindInternalOrder, Sign: +1, Counter: numerator.CounterInternalOrders},
	entity.KindDelivery:      {Kind: entity.KindDelivery, Sign: -1, Counter: numerator.CounterPurchases},
}

// SpecFor returns the spec of kind or a validation error for unknown kinds.
func SpecFor(kind entity.MovementKind) (KindSpec, error) {
	spec, ok := kinds[kind]
	if !ok {
		return KindSpec{}, apperror.NewValidation("unknown movement kind").
			WithDetail("kind", string(kind))
	}
	return spec, nil
}
