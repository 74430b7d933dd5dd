package notifications

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"academy/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_DisabledIsNoop(t *testing.T) {
	t.Parallel()
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishConversation(context.Background(), 1, []byte("x")))
	assert.NoError(t, n.PublishBroadcast(context.Background(), []byte("x")))
	assert.NoError(t, n.StartChatSubscriber(context.Background(), func(string, string) {}))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestConversationChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "chat:conv:5", ConversationChannel(5))

	id, ok := ParseConversationChannel("chat:conv:42")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"chat:conv:", "chat:conv:x", "chat:conv:0", BroadcastChannel, "game:room:1"} {
		_, ok := ParseConversationChannel(bad)
		assert.False(t, ok, bad)
	}
}

func TestNotifier_SubscriberReceivesConversationAndBroadcast(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got atomic.Int32
	channels := make(chan string, 4)
	require.NoError(t, n.StartChatSubscriber(ctx, func(channel, payload string) {
		got.Add(1)
		channels <- channel
		if payload == "boom" {
			panic("handler panic must not kill the subscriber")
		}
	}))

	require.NoError(t, n.PublishConversation(ctx, 7, []byte("boom")))
	require.NoError(t, n.PublishConversation(ctx, 7, []byte("hello")))
	require.NoError(t, n.PublishBroadcast(ctx, []byte("all")))

	seen := make([]string, 0, 3)
	for range 3 {
		select {
		case ch := <-channels:
			seen = append(seen, ch)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", seen)
		}
	}
	assert.Equal(t, []string{"chat:conv:7", "chat:conv:7", BroadcastChannel}, seen)
	assert.Equal(t, int32(3), got.Load())
}
