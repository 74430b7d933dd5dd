package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"academy/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *ChatHub, userID uint) *Client {
	return NewClient(hub, nil, userID, 0)
}

func register(t *testing.T, hub *ChatHub, userID uint) *Client {
	t.Helper()
	c := newTestClient(hub, userID)
	require.NoError(t, hub.Register(c))
	return c
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for user %d", c.UserID)
		return Envelope{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.Send:
		t.Fatalf("unexpected frame for user %d: %s", c.UserID, frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChatHub_RoomDelivery(t *testing.T) {
	hub := NewChatHub(0, nil)
	a := register(t, hub, 1)
	a2 := register(t, hub, 1)
	b := register(t, hub, 2)
	outsider := register(t, hub, 3)

	hub.Join(a, 10)
	hub.Join(b, 10)

	frame := MustEncode(EventMessageNew, MessageNewData{ConversationID: 10})
	hub.PublishToConversation(context.Background(), 10, frame, 0)

	assert.Equal(t, EventMessageNew, recv(t, a).Event)
	assert.Equal(t, EventMessageNew, recv(t, b).Event)
	assertNoFrame(t, a2)
	assertNoFrame(t, outsider)
	assert.Equal(t, []uint{1, 2}, hub.JoinedUsers(10))

	hub.PublishToConversation(context.Background(), 10, MustEncode(EventTypingStart, TypingData{ConversationID: 10, UserID: 1}), 1)
	assert.Equal(t, EventTypingStart, recv(t, b).Event)
	assertNoFrame(t, a)
}

func TestChatHub_LeaveAndUnregister(t *testing.T) {
	hub := NewChatHub(0, nil)
	a := register(t, hub, 1)
	b := register(t, hub, 2)
	hub.Join(a, 5)
	hub.Join(b, 5)

	assert.True(t, hub.Leave(a, 5))
	assert.False(t, hub.Leave(a, 5))
	assert.False(t, hub.IsJoined(a, 5))

	hub.Deliver(5, ErrorFrame("x", ""), 0)
	assertNoFrame(t, a)
	recv(t, b)

	hub.UnregisterClient(b)
	_, open := <-b.Send
	assert.False(t, open)
	assert.False(t, hub.HasConnection(2))
	assert.Empty(t, hub.JoinedUsers(5))
	assert.Equal(t, 1, hub.ConnectionCount())

	// a second unregister is harmless
	hub.UnregisterClient(b)
	b.TrySend([]byte("late"))
}

func TestChatHub_ConnectionLimit(t *testing.T) {
	hub := NewChatHub(2, nil)
	register(t, hub, 1)
	register(t, hub, 1)
	assert.ErrorIs(t, hub.Register(newTestClient(hub, 1)), ErrUserConnLimit)
	assert.NoError(t, hub.Register(newTestClient(hub, 2)))
}

func TestChatHub_CloseConversation(t *testing.T) {
	hub := NewChatHub(0, nil)
	a := register(t, hub, 1)
	hub.Join(a, 9)

	hub.CloseConversation(context.Background(), 9, MustEncode(EventConversationDeleted, ConversationRef{ConversationID: 9}))
	assert.Equal(t, EventConversationDeleted, recv(t, a).Event)
	assert.False(t, hub.IsJoined(a, 9))
	assert.Empty(t, hub.JoinedUsers(9))
}

func TestClient_TrySendNeverBlocks(t *testing.T) {
	hub := NewChatHub(0, nil)
	c := register(t, hub, 1)
	for range sendBufferSize + 10 {
		c.TrySend([]byte(`{}`))
	}
	assert.Len(t, c.Send, sendBufferSize)
}

func TestChatHub_RelayThroughRedis(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two hubs sharing Redis stand in for two API processes.
	hubA := NewChatHub(0, NewNotifier(rdb))
	hubB := NewChatHub(0, NewNotifier(rdb))
	require.NoError(t, hubA.StartWiring(ctx))
	require.NoError(t, hubB.StartWiring(ctx))

	sender := register(t, hubA, 1)
	receiver := register(t, hubB, 2)
	hubA.Join(sender, 3)
	hubB.Join(receiver, 3)

	hubA.PublishToConversation(ctx, 3, MustEncode(EventMessageNew, MessageNewData{ConversationID: 3}), 0)
	assert.Equal(t, EventMessageNew, recv(t, receiver).Event)
	assert.Equal(t, EventMessageNew, recv(t, sender).Event)

	hubB.PublishAll(ctx, MustEncode(EventUserOnline, OnlineData{UserIDs: []uint{1, 2}}))
	assert.Equal(t, EventUserOnline, recv(t, sender).Event)
	assert.Equal(t, EventUserOnline, recv(t, receiver).Event)
}
