package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"academy/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// queryLogger routes GORM output through slog and records every statement's
// latency. Only failed and slow statements are logged at the default level.
type queryLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	slow  time.Duration
}

func newQueryLogger(l *slog.Logger, slow time.Duration) *queryLogger {
	if l == nil {
		l = slog.Default()
	}
	return &queryLogger{log: l, level: logger.Warn, slow: slow}
}

func (q *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *q
	cp.level = level
	return &cp
}

func (q *queryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	q.printf(ctx, logger.Info, msg, data)
}

func (q *queryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	q.printf(ctx, logger.Warn, msg, data)
}

func (q *queryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	q.printf(ctx, logger.Error, msg, data)
}

func (q *queryLogger) printf(ctx context.Context, at logger.LogLevel, msg string, data []interface{}) {
	if q.level < at {
		return
	}
	q.log.Log(ctx, slogLevel(at), fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	observability.DatabaseQueryLatency.WithLabelValues(observability.SQLVerb(sql)).Observe(elapsed.Seconds())

	at, msg := q.classify(elapsed, err)
	if q.level < at {
		return
	}
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if at == logger.Error {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	q.log.LogAttrs(ctx, slogLevel(at), msg, attrs...)
}

// classify picks the level a statement is reported at. Missing rows are an
// expected outcome, not a failure.
func (q *queryLogger) classify(elapsed time.Duration, err error) (logger.LogLevel, string) {
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return logger.Error, "query failed"
	case q.slow > 0 && elapsed > q.slow:
		return logger.Warn, "slow query"
	}
	return logger.Info, "query"
}

func slogLevel(l logger.LogLevel) slog.Level {
	switch l {
	case logger.Error:
		return slog.LevelError
	case logger.Warn:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
