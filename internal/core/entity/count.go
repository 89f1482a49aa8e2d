package entity

import (
	"time"

	"storeledger/internal/core/id"
)

// CountHeader is a physical inventory count for one store and day.
// FixedAt is nil while the count is in progress.
type CountHeader struct {
	ID        id.ID      `db:"id" json:"id"`
	StoreID   string     `db:"store_id" json:"storeId"`
	CountDate time.Time  `db:"count_date" json:"countDate"`
	StartedAt time.Time  `db:"started_at" json:"startedAt"`
	FixedAt   *time.Time `db:"fixed_at" json:"fixedAt,omitempty"`

	TotalVariety  int   `db:"total_variety" json:"totalVariety"`
	TotalCounted  int64 `db:"total_counted" json:"totalCounted"`
	TotalVariance int64 `db:"total_variance" json:"totalVariance"`
}

// Fixed reports whether the count has been finalized.
func (h CountHeader) Fixed() bool {
	return h.FixedAt != nil
}

// CountLine holds the stock snapshot taken when the count started and
// the quantity the operator counted.
type CountLine struct {
	ProductID   string     `db:"product_id" json:"productId"`
	ProductName string     `db:"product_name" json:"productName"`
	Stock       int64      `db:"stock" json:"stock"`
	Quantity    int64      `db:"quantity" json:"quantity"`
	CountedAt   *time.Time `db:"counted_at" json:"countedAt,omitempty"`
}

// Counted reports whether the operator recorded a quantity.
func (l CountLine) Counted() bool {
	return l.CountedAt != nil
}

// Variance is the delta applied to stock when the count is fixed.
func (l CountLine) Variance() int64 {
	return l.Quantity - l.Stock
}
