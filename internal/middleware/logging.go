package middleware

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. Records logged with a request
// context carry that request's correlation fields.
var Logger *slog.Logger

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// correlated lists the context keys copied onto every record, paired with the
// fiber local each one is lifted from.
var correlated = []struct {
	key   contextKey
	local string
}{
	{RequestIDKey, "requestid"},
	{UserIDKey, "userID"},
	{TraceIDKey, "traceID"},
}

type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, f := range correlated {
		if v := ctx.Value(f.key); v != nil {
			r.AddAttrs(slog.Any(string(f.key), v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func init() {
	Logger = NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}

// NewLogger writes JSON in production and text elsewhere. An unparseable
// level falls back to info.
func NewLogger(env, level string) *slog.Logger {
	var lvl slog.Level
	if lvl.UnmarshalText([]byte(level)) != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.HasPrefix(env, "prod") {
		return WithHandler(slog.NewJSONHandler(os.Stdout, opts))
	}
	return WithHandler(slog.NewTextHandler(os.Stdout, opts))
}

// WithHandler wraps h so records pick up correlation fields.
func WithHandler(h slog.Handler) *slog.Logger {
	return slog.New(&ctxHandler{h})
}

// ContextMiddleware lifts correlation locals into the request's user context
// so service code logging with c.UserContext() is tagged too.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		for _, f := range correlated {
			switch v := c.Locals(f.local).(type) {
			case string:
				ctx = context.WithValue(ctx, f.key, v)
			case uint:
				ctx = context.WithValue(ctx, f.key, v)
			}
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger logs one record per request. Probe and scrape traffic is
// demoted to debug.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("route", c.Route().Path),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		msg := "request processed"
		if err != nil {
			msg = "request failed"
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		Logger.LogAttrs(c.UserContext(), requestLevel(c.Path(), status, err), msg, attrs...)
		return err
	}
}

func requestLevel(path string, status int, err error) slog.Level {
	switch {
	case err != nil || status >= fiber.StatusInternalServerError:
		return slog.LevelError
	case strings.HasPrefix(path, "/health") || path == "/metrics":
		return slog.LevelDebug
	case status >= fiber.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
