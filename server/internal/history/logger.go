package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = time.Second

// GormLogger routes gorm's log output through slog.
type GormLogger struct {
	log      *slog.Logger
	LogLevel logger.LogLevel
}

// NewGormLogger returns a GormLogger at Warn level. A nil l uses slog.Default().
func NewGormLogger(l *slog.Logger) *GormLogger {
	if l == nil {
		l = slog.Default()
	}
	return &GormLogger{log: l, LogLevel: logger.Warn}
}

// LogMode implements logger.Interface.
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.LogLevel = level
	return &cp
}

// Info implements logger.Interface.
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		l.log.InfoContext(ctx, msg, "data", data)
	}
}

// Warn implements logger.Interface.
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		l.log.WarnContext(ctx, msg, "data", data)
	}
}

// Error implements logger.Interface.
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		l.log.ErrorContext(ctx, msg, "data", data)
	}
}

// Trace implements logger.Interface and logs each statement.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		"sql", sql,
		"rows", rows,
		"ms", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= logger.Error:
		l.log.ErrorContext(ctx, "history: sql error", append(fields, "err", err)...)
	case elapsed > slowQuery && l.LogLevel >= logger.Warn:
		l.log.WarnContext(ctx, "history: slow sql", append(fields, "threshold", slowQuery.String())...)
	case l.LogLevel == logger.Info:
		l.log.DebugContext(ctx, "history: sql", fields...)
	}
}
