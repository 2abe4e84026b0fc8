// Package middleware holds the gin middleware shared by every route.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/logger"
)

const requestIDKey = "requestID"

// RequestID makes sure every request carries an ID, reusing the caller's
// X-Request-ID when present, and echoes it in the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(constant.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(constant.HeaderRequestID, requestID)

		c.Next()
	}
}

// GetRequestID returns the ID assigned by RequestID, or "" outside of it.
func GetRequestID(c *gin.Context) string {
	if id, exists := c.Get(requestIDKey); exists {
		if requestID, ok := id.(string); ok {
			return requestID
		}
	}
	return ""
}

// RequestLogger writes one structured line per completed request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("Request completed with server error", fields...)
			return
		}
		log.Info("Request completed", fields...)
	}
}

// Recovery turns a panic into the relay's JSON internal-error response.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error("Recovered from panic while handling request",
			"request_id", GetRequestID(c),
			"panic", recovered,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Internal error: %v", recovered),
		})
	})
}
