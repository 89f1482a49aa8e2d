// Package entity provides the persistent record shapes shared by the
// domain packages and the storage backends.
package entity

import (
	"fmt"
	"time"
)

// StockKey identifies one stock counter. Counters for different keys are
// independent of each other.
type StockKey struct {
	StoreID   string `db:"store_id" json:"storeId"`
	ProductID string `db:"product_id" json:"productId"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s/%s", k.StoreID, k.ProductID)
}

// StockBalance is the theoretical on-hand quantity of a product in a store.
// Quantity may be negative (over-sold). It only ever changes by a signed
// delta applied inside a transaction.
type StockBalance struct {
	StoreID   string    `db:"store_id" json:"storeId"`
	ProductID string    `db:"product_id" json:"productId"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Key returns the composite key of the balance.
func (b StockBalance) Key() StockKey {
	return StockKey{StoreID: b.StoreID, ProductID: b.ProductID}
}
