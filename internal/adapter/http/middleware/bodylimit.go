package middleware

import (
	"net/http"

	"payment-tracker/pkg/apperror"
	"payment-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize limits the request body. A declared length over the limit is
// refused up front; otherwise the body reader fails once the limit is hit.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, apperror.New(apperror.CodeValidation, "Request body too large", http.StatusRequestEntityTooLarge))
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
