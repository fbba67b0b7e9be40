package middleware

import (
	"github.com/gin-gonic/gin"

	"session-plane/backend/internal/ids"
)

// CorrelationHeader is the request/response header carrying the correlation id.
const CorrelationHeader = "X-Correlation-ID"

// Correlation reads the correlation id from the request header, generating one
// when absent, and stores it on the request context so the auth service can
// stamp it onto outbox events. The id is echoed on the response.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationHeader)
		if id == "" {
			id = ids.New()
		}
		c.Request = c.Request.WithContext(WithCorrelationID(c.Request.Context(), id))
		c.Header(CorrelationHeader, id)
		c.Next()
	}
}
