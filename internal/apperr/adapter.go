// In file: internal/apperr/adapter.go
package apperr

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// WriteHTTP renders err as the gateway's standard error envelope and aborts
// the gin context with the matching status code. Grounded on
// exception_adapters.py's register_exception_handlers: a known domain error
// maps to its own status and body, anything else becomes a generic 500.
func WriteHTTP(c *gin.Context, err error) {
	var aerr *Error
	if !errors.As(err, &aerr) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message": "An unexpected error occurred",
				"type":    "server_error",
				"code":    http.StatusInternalServerError,
			},
		})
		return
	}

	if aerr.Kind == KindRateLimitExceeded && aerr.ResetAt > 0 {
		c.Header("Retry-After", strconv.FormatInt(aerr.ResetAt, 10))
	}

	c.AbortWithStatusJSON(aerr.HTTPStatus(), aerr.Body())
}
