package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody defines the structure of error responses. Every non-2xx answer
// the booking API gives carries a single human-readable detail string.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				Logger := GetLogger()
				Logger.Error("Unhandled panic", zap.Any("error", err))

				c.JSON(http.StatusInternalServerError, ErrorBody{
					Detail: "An unexpected error occurred. Please try again later.",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, detail string) {
	Logger := GetLogger()
	Logger.Warn("request rejected", zap.Int("status", status), zap.String("detail", detail))
	c.JSON(status, ErrorBody{Detail: detail})
}
