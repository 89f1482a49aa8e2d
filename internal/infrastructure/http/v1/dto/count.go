package dto

import "time"

// StartCountRequest starts an inventory count. A null date means today.
type StartCountRequest struct {
	StoreID string     `json:"storeId" binding:"required,max=64"`
	Date    *time.Time `json:"date"`
}

// RecordCountRequest records the counted quantity of a product.
type RecordCountRequest struct {
	ProductName string `json:"productName" binding:"max=256"`
	Quantity    *int64 `json:"quantity" binding:"required,min=0"`
}
