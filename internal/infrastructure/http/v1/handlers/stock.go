package handlers

import (
	"github.com/gin-gonic/gin"

	"storeledger/internal/domain/stock"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// StockHandler serves stock balances.
type StockHandler struct {
	*BaseHandler
	store *stock.Store
}

// NewStockHandler creates the handler.
func NewStockHandler(base *BaseHandler, store *stock.Store) *StockHandler {
	return &StockHandler{BaseHandler: base, store: store}
}

// List returns every balance of a store.
// GET /stores/:storeId/stock
func (h *StockHandler) List(c *gin.Context) {
	var uri dto.StockURI
	if !h.BindURI(c, &uri) {
		return
	}
	items, err := h.store.List(c.Request.Context(), uri.StoreID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.StockListResponse{StoreID: uri.StoreID, Items: items})
}

// Get returns one balance. Unknown products read as zero.
// GET /stores/:storeId/stock/:productId
func (h *StockHandler) Get(c *gin.Context) {
	var uri dto.StockURI
	if !h.BindURI(c, &uri) {
		return
	}
	b, err := h.store.Balance(c.Request.Context(), uri.StoreID, uri.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}
