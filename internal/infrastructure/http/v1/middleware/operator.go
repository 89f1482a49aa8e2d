package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "storeledger/internal/core/context"
)

const (
	HeaderOperatorID = "X-Operator-ID"
	HeaderTerminalID = "X-Terminal-ID"
)

// Operator copies the terminal identity headers into the request context,
// where logging and the commit audit trail pick them up.
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := &appctx.Operator{
			OperatorID: c.GetHeader(HeaderOperatorID),
			TerminalID: c.GetHeader(HeaderTerminalID),
		}
		if op.OperatorID != "" || op.TerminalID != "" {
			c.Request = c.Request.WithContext(appctx.WithOperator(c.Request.Context(), op))
		}
		c.Next()
	}
}
