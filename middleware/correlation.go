package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/drshumard/bookingflow/utils"
)

// CorrelationMiddleware echoes the client's X-Correlation-ID, assigning one
// when the caller sent none, so every log line on both sides of a request
// shares a token.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(utils.CorrelationHeader)
		if correlationID == "" {
			correlationID = utils.NewCorrelationID()
		}
		c.Set("correlation_id", correlationID)
		c.Writer.Header().Set(utils.CorrelationHeader, correlationID)
		c.Next()
	}
}

// CorrelationID pulls the request's correlation token from the gin context.
func CorrelationID(c *gin.Context) string {
	if v, ok := c.Get("correlation_id"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
