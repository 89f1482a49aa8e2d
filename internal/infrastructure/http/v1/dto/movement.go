package dto

import (
	"time"

	"storeledger/internal/core/entity"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/movement"
)

// CreateDraftRequest opens a new draft of the kind in the path.
type CreateDraftRequest struct {
	StoreID          string     `json:"storeId" binding:"required,max=64"`
	CounterpartyCode string     `json:"counterpartyCode" binding:"required,max=64"`
	Date             *time.Time `json:"date"`
}

// ToInput converts the request.
func (r CreateDraftRequest) ToInput(kind entity.MovementKind) movement.CreateDraftInput {
	return movement.CreateDraftInput{
		Kind:             kind,
		StoreID:          r.StoreID,
		CounterpartyCode: r.CounterpartyCode,
		Date:             r.Date,
	}
}

// UpsertLineRequest sets one line. A null unitCost keeps the current cost
// or lets the price lookup fill it.
type UpsertLineRequest struct {
	ProductName string       `json:"productName" binding:"max=256"`
	Quantity    *int64       `json:"quantity" binding:"required,min=0"`
	UnitCost    *types.Money `json:"unitCost"`
	RejectType  string       `json:"rejectType" binding:"omitempty,rejecttype"`
}

// ToInput converts the request.
func (r UpsertLineRequest) ToInput(productID string) movement.LineInput {
	return movement.LineInput{
		ProductID:   productID,
		ProductName: r.ProductName,
		Quantity:    *r.Quantity,
		UnitCost:    r.UnitCost,
		RejectType:  entity.RejectType(r.RejectType),
	}
}

// CommitResponse is returned by a commit.
type CommitResponse struct {
	Kind           entity.MovementKind `json:"kind"`
	StoreID        string              `json:"storeId"`
	MovementNumber int64               `json:"movementNumber"`
	Totals         entity.Totals       `json:"totals"`
	Deltas         []movement.Delta    `json:"deltas"`
	// Summary is the per-kind breakdown, e.g. waste and return totals of a
	// rejection.
	Summary any `json:"summary,omitempty"`
}

// FromResult converts a commit result.
func FromResult(res movement.Result) CommitResponse {
	return CommitResponse{
		Kind:           res.Ref.Kind,
		StoreID:        res.Ref.StoreID,
		MovementNumber: res.MovementNumber,
		Totals:         res.Totals,
		Deltas:         res.Deltas,
		Summary:        res.Summary,
	}
}

// AuditEntryResponse is one commit in a movement's history.
type AuditEntryResponse struct {
	Action     string    `json:"action"`
	OperatorID string    `json:"operatorId,omitempty"`
	Changes    any       `json:"changes"`
	CreatedAt  time.Time `json:"createdAt"`
}
