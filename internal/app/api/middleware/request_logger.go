package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/pkg/logctx"
)

// RequestLoggerMiddleware derives the request logger from base with trace_id
// and the matched route. AuthMiddleware later adds the caller role.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := base.With("trace_id", c.GetString(logctx.TraceIDKey), "route", c.FullPath())
		setRequestLogger(c, lg)
		c.Next()
	}
}

func setRequestLogger(c *gin.Context, lg *zap.SugaredLogger) {
	c.Set(logctx.LoggerKey, lg)
	c.Request = c.Request.WithContext(logctx.WithLogger(c.Request.Context(), lg))
}

// requestLogger returns the logger set by RequestLoggerMiddleware, or a no-op.
func requestLogger(c *gin.Context) *zap.SugaredLogger {
	return logctx.FromGin(c, zap.NewNop().Sugar())
}
