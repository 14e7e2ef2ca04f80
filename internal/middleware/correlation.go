// Package middleware contains Gin middleware for the application.
package middleware

import (
	"context"

	"github.com/fenwick-labs/convene/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header key for the correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID adds a correlation ID to the request context. For the
// /ws route this context outlives the HTTP handshake: ws.Handler.ServeHTTP
// passes c.Request.Context() straight into Joint.Run, so the id set here
// tags every log line logging emits for the lifetime of that connection,
// not just the upgrade itself.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		// Set in header for response
		c.Header(HeaderXCorrelationID, correlationID)

		// Set in gin's context store, for handlers reading via c.Get
		c.Set(string(logging.CorrelationIDKey), correlationID)

		// Set in the request's context.Context, for handlers (like ws.Handler)
		// that forward c.Request.Context() into code paths logging reads from.
		ctx := context.WithValue(c.Request.Context(), logging.CorrelationIDKey, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
