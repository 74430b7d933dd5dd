package notifications

import (
	"context"
	"log/slog"

	"academy/internal/featureflags"
	"academy/internal/middleware"
	"academy/internal/observability"
	"academy/internal/push"

	"github.com/hibiken/asynq"
)

// PushNotification is what an offline participant is told about.
type PushNotification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher hands a notification to an external delivery channel. Callers treat
// it as fire-and-forget.
type Pusher interface {
	Notify(ctx context.Context, userID uint, n PushNotification) error
}

// LogPusher only logs notifications.
type LogPusher struct{}

func (LogPusher) Notify(ctx context.Context, userID uint, n PushNotification) error {
	middleware.Logger.InfoContext(ctx, "push notification",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("title", n.Title),
	)
	observability.PushDeliveries.WithLabelValues("log", "sent").Inc()
	return nil
}

// enqueuer is the part of *asynq.Client that QueuePusher uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueuePusher enqueues push:deliver tasks for the worker.
type QueuePusher struct {
	client enqueuer
	queue  string
	flags  *featureflags.Manager
}

// NewQueuePusher returns a pusher enqueueing on queue. Recipients for whom
// the chat_push flag is off are skipped.
func NewQueuePusher(client *asynq.Client, queue string, flags *featureflags.Manager) *QueuePusher {
	return &QueuePusher{client: client, queue: queue, flags: flags}
}

func (p *QueuePusher) Notify(ctx context.Context, userID uint, n PushNotification) error {
	if !p.flags.Enabled(featureflags.ChatPush, userID) {
		observability.PushDeliveries.WithLabelValues("queue", "disabled").Inc()
		return nil
	}
	task, err := push.NewDeliverTask(push.Payload{UserID: userID, Title: n.Title, Body: n.Body, Data: n.Data}, p.queue)
	if err != nil {
		return err
	}
	if _, err := p.client.EnqueueContext(ctx, task); err != nil {
		observability.PushDeliveries.WithLabelValues("queue", "failed").Inc()
		return err
	}
	observability.PushDeliveries.WithLabelValues("queue", "enqueued").Inc()
	return nil
}

// NotifyOffline pushes n to every recipient without a live connection.
// Failures are logged and swallowed.
func NotifyOffline(ctx context.Context, p Pusher, online func(uint) bool, recipients []uint, n PushNotification) {
	if p == nil {
		return
	}
	for _, userID := range recipients {
		if online(userID) {
			continue
		}
		if err := p.Notify(ctx, userID, n); err != nil {
			middleware.Logger.WarnContext(ctx, "push notification failed",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
		}
	}
}
