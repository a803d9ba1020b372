// Package middleware provides shared gin middleware for the HTTP surface.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/docquery/pkg/utils/id"
)

// HeaderXRequestID is the header carrying the request correlation id.
const HeaderXRequestID = "X-Request-ID"

// requestIDKey is the gin context key holding the correlation id.
const requestIDKey = "request_id"

// RequestID returns a middleware that tags each request with a
// correlation id. An incoming X-Request-ID header is honored so ids
// propagate across services; otherwise a fresh UUID is generated. The
// id is echoed back in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = id.NewUUID()
		}
		c.Set(requestIDKey, rid)
		c.Header(HeaderXRequestID, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id assigned to the request,
// or an empty string when the middleware is not installed.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
