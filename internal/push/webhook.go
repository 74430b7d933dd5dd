package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"academy/internal/middleware"
	"academy/internal/observability"

	"github.com/hibiken/asynq"
	"github.com/sony/gobreaker"
)

// Sender hands one notification to the outside world.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// BreakerSettings tunes the circuit breaker in front of the webhook.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// WebhookSender posts notifications as JSON to a single URL. Consecutive
// failures open the breaker and further sends fail fast until it half-opens.
type WebhookSender struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewWebhookSender returns a sender for url. Zero settings use defaults.
func NewWebhookSender(url string, client *http.Client, bs BreakerSettings) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	if bs.Timeout <= 0 {
		bs.Timeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        "push-webhook",
		MaxRequests: 1,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			var perm *permanentError
			return err == nil || errors.As(err, &perm)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			middleware.Logger.Warn("circuit breaker state",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &WebhookSender{url: url, client: client, cb: gobreaker.NewCircuitBreaker(st)}
}

// State exposes the breaker state.
func (s *WebhookSender) State() gobreaker.State {
	return s.cb.State()
}

func (s *WebhookSender) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("push: encode payload: %w", err)
	}
	_, err = s.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("push webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, &permanentError{status: resp.StatusCode}
		}
		return nil, nil
	})
	return err
}

// permanentError is a 4xx from the webhook. Retrying will not help.
type permanentError struct{ status int }

func (e *permanentError) Error() string {
	return fmt.Sprintf("push webhook rejected notification with %d", e.status)
}

// LogSender only logs. The worker uses it when no webhook is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, p Payload) error {
	middleware.Logger.InfoContext(ctx, "push notification",
		slog.Uint64("user_id", uint64(p.UserID)),
		slog.String("title", p.Title),
	)
	return nil
}

// Handler processes push:deliver tasks with sender.
func Handler(sender Sender) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		p, err := DecodePayload(t)
		if err != nil {
			observability.PushDeliveries.WithLabelValues("worker", "malformed").Inc()
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		err = sender.Send(ctx, p)
		var perm *permanentError
		switch {
		case err == nil:
			observability.PushDeliveries.WithLabelValues("worker", "sent").Inc()
			return nil
		case errors.As(err, &perm):
			observability.PushDeliveries.WithLabelValues("worker", "rejected").Inc()
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		default:
			observability.PushDeliveries.WithLabelValues("worker", "failed").Inc()
			return err
		}
	}
}
