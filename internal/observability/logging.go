// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// SetLogger routes repository and chat logs through l. Commands install the
// request-aware application logger here at startup.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

func log() *slog.Logger { return logger.Load() }

// RepoLogger logs store failures tagged with their table.
type RepoLogger struct {
	table string
}

// NewRepoLogger returns a RepoLogger for table.
func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table}
}

// LogError logs a failed repository operation.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string, attrs ...any) {
	attrs = append(attrs,
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	log().ErrorContext(ctx, "repository error", attrs...)
}

// ChatLogger logs the lifecycle of chat sockets.
type ChatLogger struct {
	hub string
}

// NewChatLogger returns a ChatLogger for the named hub.
func NewChatLogger(hub string) *ChatLogger {
	return &ChatLogger{hub: hub}
}

// Connected logs an accepted socket.
func (l *ChatLogger) Connected(ctx context.Context, userID uint, connID string) {
	log().InfoContext(ctx, "chat socket connected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("conn_id", connID),
	)
}

// Disconnected logs a closed socket. reason says what happened to presence:
// closed, handover or offline.
func (l *ChatLogger) Disconnected(ctx context.Context, userID uint, connID, reason string) {
	log().InfoContext(ctx, "chat socket disconnected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("conn_id", connID),
		slog.String("reason", reason),
	)
}

// EventFailed logs an event that failed for a reason other than the client's
// own request, such as a store error or a broken read.
func (l *ChatLogger) EventFailed(ctx context.Context, userID uint, event string, err error) {
	log().ErrorContext(ctx, "chat event failed",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}
