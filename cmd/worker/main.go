// Command worker delivers queued offline chat notifications.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"academy/internal/config"
	"academy/internal/middleware"
	"academy/internal/observability"
	"academy/internal/push"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.SetLogger(middleware.Logger)

	opt, err := push.RedisOpt(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}

	var sender push.Sender = push.LogSender{}
	if url := strings.TrimSpace(cfg.PushWebhookURL); url != "" {
		sender = push.NewWebhookSender(url, nil, push.BreakerSettings{})
		middleware.Logger.Info("push worker using webhook", slog.String("url", url))
	}

	queue := cfg.PushQueue
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      asynqLogger{middleware.Logger.With(slog.String("component", "push-worker"))},
	})

	mux := asynq.NewServeMux()
	mux.Handle(push.TypeDeliver, push.Handler(sender))

	middleware.Logger.Info("push worker starting", slog.String("queue", queue), slog.Int("concurrency", concurrency))
	// Run blocks until SIGTERM or SIGINT and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
}

// asynqLogger adapts slog to asynq's printf-free logger interface.
type asynqLogger struct{ l *slog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
