package entity

import (
	"fmt"
	"time"

	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
)

// MovementKind is the type of a movement document.
type MovementKind string

const (
	KindPurchase      MovementKind = "purchase"
	KindRejection     MovementKind = "rejection"
	KindInternalOrder MovementKind = "internal_order"
	KindDelivery      MovementKind = "delivery"
)

// MovementKinds lists every supported kind.
var MovementKinds = []MovementKind{KindPurchase, KindRejection, KindInternalOrder, KindDelivery}

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	for _, known := range MovementKinds {
		if k == known {
			return true
		}
	}
	return false
}

// DraftNumber is the movement number of a document that has never been
// numbered.
const DraftNumber int64 = -1

// MovementRef is the durable identity of a numbered movement document.
type MovementRef struct {
	Kind    MovementKind `json:"kind"`
	StoreID string       `json:"storeId"`
	Number  int64        `json:"movementNumber"`
}

func (r MovementRef) String() string {
	return fmt.Sprintf("%s/%s/%d", r.Kind, r.StoreID, r.Number)
}

// Totals are the header aggregates recomputed on every commit from the
// non-removed lines.
type Totals struct {
	Variety  int         `db:"total_variety" json:"totalVariety"`
	Quantity int64       `db:"total_quantity" json:"totalQuantity"`
	Amount   types.Money `db:"total_amount" json:"totalAmount"`
}

// MovementHeader is the header of a purchase, rejection, internal order
// or delivery.
type MovementHeader struct {
	Kind    MovementKind `db:"kind" json:"kind"`
	StoreID string       `db:"store_id" json:"storeId"`

	// MovementNumber is DraftNumber until the first commit allocates one.
	// It never changes afterwards.
	MovementNumber int64 `db:"movement_number" json:"movementNumber"`

	// CounterpartyCode is the supplier, or the other store for transfers.
	CounterpartyCode string    `db:"counterparty_code" json:"counterpartyCode"`
	Date             time.Time `db:"movement_date" json:"date"`

	// Fixed is true once committed and false again after a reopen.
	Fixed bool `db:"fixed" json:"fixed"`

	Totals

	CommittedAt *time.Time `db:"committed_at" json:"committedAt,omitempty"`

	// DraftID is the handle that first committed the document. A retry of
	// that commit recognises its own header by it.
	DraftID id.ID `db:"draft_id" json:"draftId"`
}

// Ref returns the durable identity of the header.
func (h MovementHeader) Ref() MovementRef {
	return MovementRef{Kind: h.Kind, StoreID: h.StoreID, Number: h.MovementNumber}
}

// Numbered reports whether a movement number has been assigned.
func (h MovementHeader) Numbered() bool {
	return h.MovementNumber > 0
}

// RejectType classifies rejection lines for reporting. It never changes
// the sign of the stock delta.
type RejectType string

const (
	RejectWaste  RejectType = "waste"
	RejectReturn RejectType = "return"
)

// Valid reports whether t is empty or a known reject type.
func (t RejectType) Valid() bool {
	return t == "" || t == RejectWaste || t == RejectReturn
}

// MovementLine is one product entry of a movement document.
//
// A line with Fixed set carries a quantity that has already been applied to
// stock. Removed lines are kept with quantity 0 until the next commit so the
// last committed quantity can still be diffed against.
type MovementLine struct {
	ProductID   string       `db:"product_id" json:"productId"`
	ProductName string       `db:"product_name" json:"productName"`
	Quantity    int64        `db:"quantity" json:"quantity"`
	UnitCost    *types.Money `db:"unit_cost" json:"unitCost"`
	RejectType  RejectType   `db:"reject_type" json:"rejectType,omitempty"`
	Fixed       bool         `db:"fixed" json:"fixed"`
	Removed     bool         `db:"removed" json:"removed"`
}

// Amount is quantity times unit cost, zero when the cost is unknown.
func (l MovementLine) Amount() types.Money {
	if l.UnitCost == nil {
		return types.Zero()
	}
	return l.UnitCost.Mul(types.NewMoneyFromInt(l.Quantity))
}
