package dto

import (
	"storeledger/internal/core/types"
	"storeledger/internal/domain/pricing"
)

// PriceURI binds :productId of a price route.
type PriceURI struct {
	ProductID string `uri:"productId" binding:"required,max=64"`
}

// PriceScope narrows a price to a store and supplier. Empty fields make a
// stored price a fallback and a lookup less specific.
type PriceScope struct {
	StoreID    string `form:"storeId" json:"storeId" binding:"max=64"`
	SupplierID string `form:"supplierId" json:"supplierId" binding:"max=64"`
}

// Query returns the lookup key for productID.
func (s PriceScope) Query(productID string) pricing.Query {
	return pricing.Query{StoreID: s.StoreID, ProductID: productID, SupplierID: s.SupplierID}
}

// PutPriceRequest sets one price.
type PutPriceRequest struct {
	PriceScope
	UnitCost *types.Money `json:"unitCost"`
	TaxRate  types.Money  `json:"taxRate"`
	NoReturn bool         `json:"noReturn"`
}

// ToQuote converts the request.
func (r PutPriceRequest) ToQuote() pricing.Quote {
	return pricing.Quote{UnitCost: r.UnitCost, TaxRate: r.TaxRate, NoReturn: r.NoReturn}
}
