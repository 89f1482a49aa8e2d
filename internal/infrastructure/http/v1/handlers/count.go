package handlers

import (
	"github.com/gin-gonic/gin"

	"storeledger/internal/domain/inventorycount"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// CountHandler handles inventory counts.
type CountHandler struct {
	*BaseHandler
	service *inventorycount.Service
}

// NewCountHandler creates the handler.
func NewCountHandler(base *BaseHandler, service *inventorycount.Service) *CountHandler {
	return &CountHandler{BaseHandler: base, service: service}
}

// Start begins a count.
// POST /counts
func (h *CountHandler) Start(c *gin.Context) {
	var req dto.StartCountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	view, err := h.service.StartCount(c.Request.Context(), req.StoreID, req.Date)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, view)
}

// Get returns a count.
// GET /counts/:handle
func (h *CountHandler) Get(c *gin.Context) {
	countID, ok := h.Handle(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// Record sets a counted quantity.
// PUT /counts/:handle/lines/:productId
func (h *CountHandler) Record(c *gin.Context) {
	countID, productID, ok := h.Line(c)
	if !ok {
		return
	}
	var req dto.RecordCountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	view, err := h.service.RecordCount(c.Request.Context(), countID, productID, req.ProductName, *req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// Clear withdraws a counted quantity.
// DELETE /counts/:handle/lines/:productId
func (h *CountHandler) Clear(c *gin.Context) {
	countID, productID, ok := h.Line(c)
	if !ok {
		return
	}
	view, err := h.service.ClearCount(c.Request.Context(), countID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// Fix applies the count to stock.
// POST /counts/:handle/fix
func (h *CountHandler) Fix(c *gin.Context) {
	countID, ok := h.Handle(c)
	if !ok {
		return
	}
	res, err := h.service.FixCount(c.Request.Context(), countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Unfix reverses a same-day fix.
// POST /counts/:handle/unfix
func (h *CountHandler) Unfix(c *gin.Context) {
	countID, ok := h.Handle(c)
	if !ok {
		return
	}
	res, err := h.service.UnfixCount(c.Request.Context(), countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
