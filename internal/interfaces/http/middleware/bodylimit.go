package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/analytics/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size. Session
// batches are the largest payloads the collector accepts; anything beyond the
// limit is rejected before binding
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size"))
			return
		}

		// Streaming requests without Content-Length still get cut off
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
