package logctx

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Keys shared with gin.Context, where handlers read them by name.
const (
	LoggerKey  = "logger"
	TraceIDKey = "traceID"

	externalIDKey = "external_id"
)

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(LoggerKey); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns a logger from context if set, otherwise attempts to enrich
// base with trace_id/external_id from context values.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	var lg *zap.SugaredLogger
	if l, ok := ctx.Value(LoggerKey).(*zap.SugaredLogger); ok && l != nil {
		lg = l
	} else {
		lg = base
		if tid, ok := ctx.Value(TraceIDKey).(string); ok && tid != "" {
			lg = lg.With("trace_id", tid)
		}
	}
	if eid, ok := ctx.Value(externalIDKey).(int64); ok && eid != 0 {
		lg = lg.With("external_id", strconv.FormatInt(eid, 10))
	}
	return lg
}

// WithExternalID tags ctx so that FromCtx loggers carry the account identity.
func WithExternalID(ctx context.Context, externalID int64) context.Context {
	return context.WithValue(ctx, externalIDKey, externalID)
}

// WithLogger stores a request-scoped logger in ctx.
func WithLogger(ctx context.Context, lg *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, LoggerKey, lg)
}

// WithTraceID stores the request trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}
