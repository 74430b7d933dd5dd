// Package push delivers offline chat notifications through a background queue.
package push

import (
	"encoding/json"
	"fmt"
	"time"

	"academy/internal/cache"

	"github.com/hibiken/asynq"
)

// TypeDeliver is the asynq task type of one offline notification.
const TypeDeliver = "push:deliver"

// Payload is the body of a push:deliver task.
type Payload struct {
	UserID uint              `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// NewDeliverTask encodes p as a push:deliver task for queue.
func NewDeliverTask(p Payload, queue string) (*asynq.Task, error) {
	if p.UserID == 0 {
		return nil, fmt.Errorf("push: user id is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("push: encode payload: %w", err)
	}
	opts := []asynq.Option{asynq.MaxRetry(5), asynq.Timeout(30 * time.Second), asynq.Retention(time.Hour)}
	if queue != "" {
		opts = append(opts, asynq.Queue(queue))
	}
	return asynq.NewTask(TypeDeliver, body, opts...), nil
}

// DecodePayload reverses NewDeliverTask.
func DecodePayload(t *asynq.Task) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return Payload{}, fmt.Errorf("push: decode payload: %w", err)
	}
	return p, nil
}

// RedisOpt converts the REDIS_URL setting into asynq connection options.
func RedisOpt(addr string) (asynq.RedisClientOpt, error) {
	o, err := cache.Options(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}, nil
}
