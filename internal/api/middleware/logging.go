package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/syncwavelabs/syncwave/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// Logger replaces the default GIN logger with structured zap logging. The
// correlation ID is read from the request context so access lines join up
// with whatever the engine later logs for the enqueued action.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("correlation_id", correlation.ExtractCorrelationID(c.Request.Context())),
			zap.String("ip", c.ClientIP()),
			zap.Int("size", c.Writer.Size()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		logger.Info("http_request", fields...)
	}
}
