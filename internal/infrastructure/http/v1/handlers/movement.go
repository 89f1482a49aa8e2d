package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storeledger/internal/core/entity"
	"storeledger/internal/domain/movement"
	"storeledger/internal/infrastructure/http/v1/dto"
)

// HistoryReader returns the commit trail of a movement.
type HistoryReader interface {
	History(ctx context.Context, ref entity.MovementRef, limit int) ([]entity.AuditEntry, error)
}

// MovementHandler handles movement drafts and commits.
type MovementHandler struct {
	*BaseHandler
	service *movement.Service
	history HistoryReader
}

// NewMovementHandler creates the handler. history may be nil.
func NewMovementHandler(base *BaseHandler, service *movement.Service, history HistoryReader) *MovementHandler {
	return &MovementHandler{BaseHandler: base, service: service, history: history}
}

// CreateDraft starts a new draft.
// POST /movements/:kind/drafts
func (h *MovementHandler) CreateDraft(c *gin.Context) {
	var uri dto.KindURI
	if !h.BindURI(c, &uri) {
		return
	}
	var req dto.CreateDraftRequest
	if !h.BindJSON(c, &req) {
		return
	}

	view, err := h.service.CreateDraft(c.Request.Context(), req.ToInput(dto.NormalizeKind(uri.Kind)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, view)
}

// Open loads a committed document into a new handle.
// POST /movements/:kind/:storeId/:number/open
func (h *MovementHandler) Open(c *gin.Context) {
	var uri dto.MovementURI
	if !h.BindURI(c, &uri) {
		return
	}
	view, err := h.service.Open(c.Request.Context(), entity.MovementRef{
		Kind:    dto.NormalizeKind(uri.Kind),
		StoreID: uri.StoreID,
		Number:  uri.Number,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, view)
}

// Receive books a delivery as a purchase draft at the receiving store.
// POST /deliveries/:storeId/:number/receive
func (h *MovementHandler) Receive(c *gin.Context) {
	var uri dto.DeliveryURI
	if !h.BindURI(c, &uri) {
		return
	}
	view, err := h.service.Receive(c.Request.Context(), uri.StoreID, uri.Number)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, view)
}

// Get returns a handle.
// GET /drafts/:handle
func (h *MovementHandler) Get(c *gin.Context) {
	handle, ok := h.Handle(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), handle)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// UpsertLine adds or changes a line.
// PUT /drafts/:handle/lines/:productId
func (h *MovementHandler) UpsertLine(c *gin.Context) {
	handle, productID, ok := h.Line(c)
	if !ok {
		return
	}
	var req dto.UpsertLineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	view, err := h.service.UpsertLine(c.Request.Context(), handle, req.ToInput(productID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// RemoveLine removes a line.
// DELETE /drafts/:handle/lines/:productId
func (h *MovementHandler) RemoveLine(c *gin.Context) {
	handle, productID, ok := h.Line(c)
	if !ok {
		return
	}
	view, err := h.service.RemoveLine(c.Request.Context(), handle, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// Commit reconciles the handle into stock.
// POST /drafts/:handle/commit
func (h *MovementHandler) Commit(c *gin.Context) {
	handle, ok := h.Handle(c)
	if !ok {
		return
	}
	res, err := h.service.Commit(c.Request.Context(), handle)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromResult(res))
}

// Reopen makes a committed handle editable.
// POST /drafts/:handle/reopen
func (h *MovementHandler) Reopen(c *gin.Context) {
	handle, ok := h.Handle(c)
	if !ok {
		return
	}
	view, err := h.service.Reopen(c.Request.Context(), handle)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// Discard drops a handle.
// DELETE /drafts/:handle
func (h *MovementHandler) Discard(c *gin.Context) {
	handle, ok := h.Handle(c)
	if !ok {
		return
	}
	if err := h.service.Discard(c.Request.Context(), handle); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// HasHistory reports whether the history route can be served.
func (h *MovementHandler) HasHistory() bool {
	return h.history != nil
}

// History lists the commits of a document, newest first.
// GET /movements/:kind/:storeId/:number/history
func (h *MovementHandler) History(c *gin.Context) {
	var uri dto.MovementURI
	if !h.BindURI(c, &uri) {
		return
	}
	ref := entity.MovementRef{Kind: dto.NormalizeKind(uri.Kind), StoreID: uri.StoreID, Number: uri.Number}
	entries, err := h.history.History(c.Request.Context(), ref, h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.AuditEntryResponse{
			Action:     string(e.Action),
			OperatorID: e.OperatorID,
			Changes:    e.Changes,
			CreatedAt:  e.CreatedAt,
		})
	}
	h.OK(c, out)
}
