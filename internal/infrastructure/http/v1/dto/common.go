// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"storeledger/internal/core/entity"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HandleURI binds the :handle path segment.
type HandleURI struct {
	Handle string `uri:"handle" binding:"required,uuid"`
}

// LineURI binds :handle and :productId.
type LineURI struct {
	Handle    string `uri:"handle" binding:"required,uuid"`
	ProductID string `uri:"productId" binding:"required,max=64"`
}

// KindURI binds the :kind path segment.
type KindURI struct {
	Kind string `uri:"kind" binding:"required,movementkind"`
}

// MovementURI binds :kind, :storeId and :number of a committed document.
type MovementURI struct {
	Kind    string `uri:"kind" binding:"required,movementkind"`
	StoreID string `uri:"storeId" binding:"required,max=64"`
	Number  int64  `uri:"number" binding:"required,min=1"`
}

// DeliveryURI binds the delivery being received.
type DeliveryURI struct {
	StoreID string `uri:"storeId" binding:"required,max=64"`
	Number  int64  `uri:"number" binding:"required,min=1"`
}

// NormalizeKind accepts both internal_order and internal-order.
func NormalizeKind(s string) entity.MovementKind {
	return entity.MovementKind(strings.ReplaceAll(strings.ToLower(s), "-", "_"))
}

// RegisterValidators adds the custom tags to gin's validator engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("movementkind", func(fl validator.FieldLevel) bool {
		return NormalizeKind(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("rejecttype", func(fl validator.FieldLevel) bool {
		return entity.RejectType(fl.Field().String()).Valid()
	})
}
