package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/syncwavelabs/syncwave/pkg/telemetry/correlation"
)

const requestIDHeader = "X-Request-ID"

// RequestID ensures every request carries a correlation ID, honoring the one
// supplied by the caller when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := strings.TrimSpace(c.GetHeader(requestIDHeader)); incoming != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, incoming)
		}

		ctx, id := correlation.EnsureCorrelationID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		c.Next()
	}
}
