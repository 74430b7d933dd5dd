// Package notifications provides real-time chat delivery: websocket clients,
// conversation rooms, presence and the Redis relay between API processes.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"academy/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	conversationChannelPrefix = "chat:conv:"
	// BroadcastChannel carries frames for every connected client.
	BroadcastChannel = "chat:broadcast"
	chatPattern      = "chat:*"
)

// Notifier publishes chat frames into Redis channels so that every API
// process can deliver them to its own connections.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a Notifier. A nil client yields a disabled notifier.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether publishing goes anywhere.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishConversation sends payload to a conversation channel.
func (n *Notifier) PublishConversation(ctx context.Context, conversationID uint, payload []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, ConversationChannel(conversationID), payload).Err()
}

// PublishBroadcast sends payload to every process.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, BroadcastChannel, payload).Err()
}

// StartChatSubscriber subscribes to every chat channel and calls onMessage
// for each incoming message until ctx is done. It returns once Redis has
// confirmed the subscription.
func (n *Notifier) StartChatSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, chatPattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", chatPattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in chat subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// ConversationChannel derives the Redis channel name for a conversation.
func ConversationChannel(conversationID uint) string {
	return conversationChannelPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

// ParseConversationChannel extracts the conversation id from a channel name.
func ParseConversationChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, conversationChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
