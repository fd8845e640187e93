package gormlog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/whattoeat/kitchenbot/pkg/logctx"
)

// ZapLogger implements gorm's logger.Interface on top of the request-scoped
// zap logger, so SQL lines carry trace_id and external_id.
type ZapLogger struct {
	base *zap.SugaredLogger
	cfg  gormlogger.Config
}

// New builds a gorm logger. verbose logs every statement with its bind
// parameters; otherwise only slow queries and errors are logged and parameters
// (profile data, webhook payloads) are replaced by placeholders.
func New(base *zap.SugaredLogger, verbose bool) *ZapLogger {
	cfg := gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	}
	if verbose {
		cfg.LogLevel = gormlogger.Info
		cfg.ParameterizedQueries = false
	}
	return &ZapLogger{base: base, cfg: cfg}
}

func (z *ZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *z
	cp.cfg.LogLevel = level
	return &cp
}

func (z *ZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if z.cfg.LogLevel >= gormlogger.Info {
		logctx.FromCtx(ctx, z.base).Infow(msg, "args", data)
	}
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if z.cfg.LogLevel >= gormlogger.Warn {
		logctx.FromCtx(ctx, z.base).Warnw(msg, "args", data)
	}
}

func (z *ZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if z.cfg.LogLevel >= gormlogger.Error {
		logctx.FromCtx(ctx, z.base).Errorw(msg, "args", data)
	}
}

// ParamsFilter keeps bind parameters out of the rendered SQL unless verbose.
func (z *ZapLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if z.cfg.ParameterizedQueries {
		return sql, nil
	}
	return sql, params
}

func (z *ZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.cfg.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	notFound := errors.Is(err, gorm.ErrRecordNotFound) && z.cfg.IgnoreRecordNotFoundError

	switch {
	case err != nil && !notFound && z.cfg.LogLevel >= gormlogger.Error:
		sql, rows := fc()
		logctx.FromCtx(ctx, z.base).Errorw("gorm_error", fields(sql, rows, elapsed, "err", err)...)
	case z.cfg.SlowThreshold > 0 && elapsed > z.cfg.SlowThreshold && z.cfg.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		logctx.FromCtx(ctx, z.base).Warnw("gorm_slow", fields(sql, rows, elapsed, "threshold_ms", z.cfg.SlowThreshold.Milliseconds())...)
	case z.cfg.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		logctx.FromCtx(ctx, z.base).Debugw("gorm", fields(sql, rows, elapsed)...)
	}
}

func fields(sql string, rows int64, elapsed time.Duration, extra ...interface{}) []interface{} {
	out := []interface{}{
		"sql", sql,
		"rows", rows,
		"elapsed_ms", elapsed.Milliseconds(),
		"caller", shortCaller(utils.FileWithLineNum()),
	}
	return append(out, extra...)
}

// shortCaller trims a build path to its repo-relative form, e.g.
// /src/kitchenbot/internal/platform/db/postgres.go:38 -> internal/platform/db/postgres.go:38.
func shortCaller(s string) string {
	if s == "" {
		return s
	}
	path, line := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 {
		path, line = s[:i], s[i:]
	}
	path = filepath.ToSlash(path)
	for _, root := range []string{"/internal/", "/pkg/", "/cmd/"} {
		if i := strings.Index(path, root); i >= 0 {
			return path[i+1:] + line
		}
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	return strings.Join(parts, "/") + line
}
