package dto

import "storeledger/internal/core/entity"

// StockURI binds a stock read.
type StockURI struct {
	StoreID   string `uri:"storeId" binding:"required,max=64"`
	ProductID string `uri:"productId" binding:"omitempty,max=64"`
}

// StockListResponse lists the balances of one store.
type StockListResponse struct {
	StoreID string                `json:"storeId"`
	Items   []entity.StockBalance `json:"items"`
}
