package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"storeledger/internal/infrastructure/metrics"
)

// Metrics records request count, latency and in-flight requests. The path
// label is the route template, never the raw URL.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
