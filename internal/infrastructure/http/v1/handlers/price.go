package handlers

import (
	"github.com/gin-gonic/gin"

	"storeledger/internal/core/apperror"
	"storeledger/internal/domain/pricing"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// PriceHandler maintains the price table used to fill unit costs and
// classify rejections.
type PriceHandler struct {
	*BaseHandler
	prices pricing.Table
}

// NewPriceHandler creates the handler.
func NewPriceHandler(base *BaseHandler, prices pricing.Table) *PriceHandler {
	return &PriceHandler{BaseHandler: base, prices: prices}
}

// Get resolves the price that applies to a product, store and supplier.
// GET /prices/:productId?storeId=&supplierId=
func (h *PriceHandler) Get(c *gin.Context) {
	var uri dto.PriceURI
	if !h.BindURI(c, &uri) {
		return
	}
	var scope dto.PriceScope
	if !h.BindQuery(c, &scope) {
		return
	}
	quote, ok, err := h.prices.Lookup(c.Request.Context(), scope.Query(uri.ProductID))
	if err != nil {
		h.Error(c, err)
		return
	}
	if !ok {
		h.Error(c, apperror.NewNotFound("price", uri.ProductID))
		return
	}
	h.OK(c, quote)
}

// Put stores a price. Omit storeId or supplierId to set a fallback.
// PUT /prices/:productId
func (h *PriceHandler) Put(c *gin.Context) {
	var uri dto.PriceURI
	if !h.BindURI(c, &uri) {
		return
	}
	var req dto.PutPriceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		h.Error(c, apperror.NewValidation("unit cost must not be negative").WithDetail("productId", uri.ProductID))
		return
	}
	if err := h.prices.Put(c.Request.Context(), req.Query(uri.ProductID), req.ToQuote()); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
