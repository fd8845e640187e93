package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/tool"
)

const (
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 64
)

// TraceMiddleware assigns every request a trace id. A caller-supplied
// X-Request-ID is reused when it is short and plain; otherwise a uuid v7 is
// generated. The id is echoed in the response header.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(requestIDHeader)
		if !validRequestID(traceID) {
			traceID = tool.GenerateUUIDV7()
		}
		c.Set(logctx.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Writer.Header().Set(requestIDHeader, traceID)
		c.Next()
	}
}

// validRequestID accepts ids made of letters, digits, '-', '_' and '.'.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
