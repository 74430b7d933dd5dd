package server

import (
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"academy/internal/models"
	"academy/internal/notifications"
	"academy/internal/testutil"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameTimeout = 3 * time.Second

// listen serves the app on a loopback port and returns its address.
func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = e.app.Listener(ln) }()
	t.Cleanup(func() { _ = e.app.ShutdownWithTimeout(time.Second) })
	return ln.Addr().String()
}

func (e *testEnv) ticket(t *testing.T, user *models.User) string {
	t.Helper()
	var issued struct {
		Ticket string `json:"ticket"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/ws/ticket", e.token(t, user), nil, &issued))
	return issued.Ticket
}

// dialChat opens a chat socket for user. Cleanup closes it before the
// server shuts down.
func (e *testEnv) dialChat(t *testing.T, addr string, user *models.User) *gws.Conn {
	t.Helper()
	conn, resp, err := gws.DefaultDialer.Dial("ws://"+addr+"/api/ws/chat?ticket="+e.ticket(t, user), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *gws.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gws.TextMessage, notifications.MustEncode(event, data)))
}

// readUntil skips frames until one with the wanted event arrives.
func readUntil(t *testing.T, conn *gws.Conn, event string) notifications.Envelope {
	t.Helper()
	deadline := time.Now().Add(frameTimeout)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var env notifications.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event == event {
			return env
		}
	}
}

// readEvents collects the first frame of each wanted event, in any order.
func readEvents(t *testing.T, conn *gws.Conn, events ...string) map[string]notifications.Envelope {
	t.Helper()
	want := make(map[string]bool, len(events))
	for _, e := range events {
		want[e] = true
	}
	got := make(map[string]notifications.Envelope, len(events))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(frameTimeout)))
	for len(got) < len(want) {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %v", events)
		var env notifications.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if _, seen := got[env.Event]; want[env.Event] && !seen {
			got[env.Event] = env
		}
	}
	return got
}

func joinConversation(t *testing.T, conn *gws.Conn, convID uint) {
	t.Helper()
	sendFrame(t, conn, notifications.EventConversationJoin, notifications.ConversationRef{ConversationID: convID})
	env := readUntil(t, conn, notifications.EventConversationJoined)
	var ref notifications.ConversationRef
	require.NoError(t, json.Unmarshal(env.Data, &ref))
	require.Equal(t, convID, ref.ConversationID)
}

func (e *testEnv) privateConversation(t *testing.T, a, b *models.User) uint {
	t.Helper()
	var conv models.Conversation
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/conversations/private", e.token(t, a),
		map[string]uint{"user_id": b.ID}, &conv))
	require.NotZero(t, conv.ID)
	return conv.ID
}

func (e *testEnv) unreadCount(t *testing.T, viewer *models.User, convID, userID uint) int {
	t.Helper()
	var conv struct {
		UnreadCount map[string]int `json:"unread_count"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/conversations/"+itoa(convID), e.token(t, viewer), nil, &conv))
	return conv.UnreadCount[itoa(userID)]
}

func TestChatSocket_SendAndMarkRead(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)
	alice := testutil.CreateUser(t, env.db, "alice", testutil.WithAccess(models.AccessBasic))
	bob := testutil.CreateUser(t, env.db, "bob", testutil.WithAccess(models.AccessBasic))
	convID := env.privateConversation(t, alice, bob)

	aConn := env.dialChat(t, addr, alice)
	bConn := env.dialChat(t, addr, bob)
	joinConversation(t, aConn, convID)
	joinConversation(t, bConn, convID)

	sendFrame(t, aConn, notifications.EventMessageSend, notifications.SendMessageData{ConversationID: convID, Content: "hello"})

	frame := readUntil(t, bConn, notifications.EventMessageNew)
	var got notifications.MessageNewData
	require.NoError(t, json.Unmarshal(frame.Data, &got))
	assert.Equal(t, convID, got.ConversationID)
	require.NotNil(t, got.Message)
	assert.Equal(t, "hello", got.Message.Content)
	assert.Equal(t, alice.ID, got.Message.SenderID)

	// The sender's own sockets get the message too.
	readUntil(t, aConn, notifications.EventMessageNew)

	assert.Equal(t, 1, env.unreadCount(t, alice, convID, bob.ID))
	assert.Equal(t, 0, env.unreadCount(t, alice, convID, alice.ID))

	sendFrame(t, bConn, notifications.EventMessageRead, notifications.ReadData{ConversationID: convID})
	receipt := readUntil(t, aConn, notifications.EventMessageRead)
	var read notifications.ReadReceiptData
	require.NoError(t, json.Unmarshal(receipt.Data, &read))
	assert.Equal(t, bob.ID, read.UserID)
	assert.Equal(t, []uint{got.Message.ID}, read.MessageIDs)

	assert.Equal(t, 0, env.unreadCount(t, bob, convID, bob.ID))
}

func TestChatSocket_FreeUserRejectedBeforeUpgrade(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)
	free := testutil.CreateUser(t, env.db, "freeloader")

	conn, resp, err := gws.DefaultDialer.Dial("ws://"+addr+"/api/ws/chat?ticket="+env.ticket(t, free), nil)
	if conn != nil {
		_ = conn.Close()
	}
	require.ErrorIs(t, err, gws.ErrBadHandshake)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.CodeForbidden, body.Code)
	assert.Equal(t, chatTierDenied, body.Error)

	assert.Zero(t, env.s.chatHub.ConnectionCount())
	assert.False(t, env.s.connections.IsOnline(free.ID))

	// The REST side of chat is closed to the same user.
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/conversations", env.token(t, free), nil, nil))
}

func TestChatSocket_RejectsBadTicket(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)

	_, resp, err := gws.DefaultDialer.Dial("ws://"+addr+"/api/ws/chat?ticket=forged", nil)
	require.ErrorIs(t, err, gws.ErrBadHandshake)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatSocket_ErrorsKeepSocketOpen(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)
	alice := testutil.CreateUser(t, env.db, "alice", testutil.WithAccess(models.AccessBasic))
	bob := testutil.CreateUser(t, env.db, "bob", testutil.WithAccess(models.AccessBasic))
	carol := testutil.CreateUser(t, env.db, "carol", testutil.WithAccess(models.AccessPremium))
	convID := env.privateConversation(t, alice, bob)

	conn := env.dialChat(t, addr, carol)

	errorData := func() notifications.ErrorData {
		var data notifications.ErrorData
		require.NoError(t, json.Unmarshal(readUntil(t, conn, notifications.EventError).Data, &data))
		return data
	}

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("not json")))
	assert.Equal(t, models.CodeValidation, errorData().Code)

	sendFrame(t, conn, "conversation:explode", notifications.ConversationRef{ConversationID: convID})
	assert.Equal(t, models.CodeValidation, errorData().Code)

	sendFrame(t, conn, notifications.EventConversationJoin, notifications.ConversationRef{ConversationID: convID})
	assert.Equal(t, models.CodeForbidden, errorData().Code)

	sendFrame(t, conn, notifications.EventMessageSend, notifications.SendMessageData{ConversationID: convID, Content: "let me in"})
	assert.Equal(t, models.CodeForbidden, errorData().Code)

	sendFrame(t, conn, notifications.EventConversationJoin, notifications.ConversationRef{ConversationID: 999999})
	assert.Equal(t, models.CodeNotFound, errorData().Code)

	// Still usable: a valid conversation of carol's own can be joined.
	own := env.privateConversation(t, carol, alice)
	joinConversation(t, conn, own)
}

func TestChatSocket_TypingAndPresence(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)
	alice := testutil.CreateUser(t, env.db, "alice", testutil.WithAccess(models.AccessBasic))
	bob := testutil.CreateUser(t, env.db, "bob", testutil.WithRole(models.RoleTeacher))
	convID := env.privateConversation(t, alice, bob)

	aConn := env.dialChat(t, addr, alice)
	bConn := env.dialChat(t, addr, bob)

	var online struct {
		UserIDs []uint `json:"user_ids"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chat/online", env.token(t, alice), nil, &online))
	assert.ElementsMatch(t, []uint{alice.ID, bob.ID}, online.UserIDs)

	// Typing before joining is refused.
	sendFrame(t, aConn, notifications.EventTypingStart, notifications.ConversationRef{ConversationID: convID})
	var refused notifications.ErrorData
	require.NoError(t, json.Unmarshal(readUntil(t, aConn, notifications.EventError).Data, &refused))
	assert.Equal(t, models.CodeForbidden, refused.Code)

	joinConversation(t, aConn, convID)
	joinConversation(t, bConn, convID)

	sendFrame(t, aConn, notifications.EventTypingStart, notifications.ConversationRef{ConversationID: convID})
	var typing notifications.TypingData
	require.NoError(t, json.Unmarshal(readUntil(t, bConn, notifications.EventTypingStart).Data, &typing))
	assert.Equal(t, notifications.TypingData{ConversationID: convID, UserID: alice.ID}, typing)
	assert.Equal(t, []uint{alice.ID}, env.s.connections.TypingUsers(convID))

	// Dropping the socket clears typing and presence for everyone else.
	require.NoError(t, aConn.Close())
	frames := readEvents(t, bConn, notifications.EventTypingStop, notifications.EventUserOffline)
	require.NoError(t, json.Unmarshal(frames[notifications.EventTypingStop].Data, &typing))
	assert.Equal(t, alice.ID, typing.UserID)

	var offline notifications.UserRef
	require.NoError(t, json.Unmarshal(frames[notifications.EventUserOffline].Data, &offline))
	assert.Equal(t, alice.ID, offline.UserID)
	assert.Empty(t, env.s.connections.TypingUsers(convID))
	assert.False(t, env.s.connections.IsOnline(alice.ID))
}

func TestChatSocket_PresenceSurvivesSecondDevice(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)
	alice := testutil.CreateUser(t, env.db, "alice", testutil.WithAccess(models.AccessBasic))
	bob := testutil.CreateUser(t, env.db, "bob", testutil.WithAccess(models.AccessBasic))

	phone := env.dialChat(t, addr, alice)
	laptop := env.dialChat(t, addr, alice)
	bConn := env.dialChat(t, addr, bob)
	readUntil(t, phone, notifications.EventUserOnline)

	// The laptop announced presence last; closing it hands presence back to the phone.
	require.NoError(t, laptop.Close())
	require.Eventually(t, func() bool {
		return env.s.chatHub.ConnectionCount() == 2
	}, frameTimeout, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.True(t, env.s.connections.IsOnline(alice.ID))

	require.NoError(t, phone.Close())
	var offline notifications.UserRef
	require.NoError(t, json.Unmarshal(readUntil(t, bConn, notifications.EventUserOffline).Data, &offline))
	assert.Equal(t, alice.ID, offline.UserID)
}

func TestDeleteConversation_NotifiesJoinedSockets(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)
	alice := testutil.CreateUser(t, env.db, "alice", testutil.WithAccess(models.AccessBasic))
	bob := testutil.CreateUser(t, env.db, "bob", testutil.WithAccess(models.AccessBasic))
	convID := env.privateConversation(t, alice, bob)

	bConn := env.dialChat(t, addr, bob)
	joinConversation(t, bConn, convID)

	require.Equal(t, http.StatusNoContent,
		env.do(t, http.MethodDelete, "/api/conversations/"+itoa(convID), env.token(t, alice), nil, nil))

	var ref notifications.ConversationRef
	require.NoError(t, json.Unmarshal(readUntil(t, bConn, notifications.EventConversationDeleted).Data, &ref))
	assert.Equal(t, convID, ref.ConversationID)
	assert.Empty(t, env.s.chatHub.JoinedUsers(convID))

	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodGet, "/api/conversations/"+itoa(convID), env.token(t, bob), nil, nil))
}

// Each socket's writer must be finished before its handler returns and the
// connection is recycled. Rapid reconnects with presence broadcasts in flight
// exercise that hand-off; run with -race to catch a writer outliving it.
func TestChatSocket_ReconnectChurn(t *testing.T) {
	env := newTestServer(t)
	addr := env.listen(t)
	alice := testutil.CreateUser(t, env.db, "alice", testutil.WithAccess(models.AccessBasic))
	bob := testutil.CreateUser(t, env.db, "bob", testutil.WithAccess(models.AccessBasic))

	observer := env.dialChat(t, addr, bob)
	readUntil(t, observer, notifications.EventUserOnline)

	for range 40 {
		conn := env.dialChat(t, addr, alice)
		require.NoError(t, conn.Close())
	}
	require.Eventually(t, func() bool {
		return env.s.chatHub.ConnectionCount() == 1
	}, frameTimeout, 10*time.Millisecond)

	last := env.dialChat(t, addr, alice)
	var online notifications.OnlineData
	require.NoError(t, json.Unmarshal(readUntil(t, last, notifications.EventUserOnline).Data, &online))
	assert.ElementsMatch(t, []uint{alice.ID, bob.ID}, online.UserIDs)
	assert.Equal(t, 2, env.s.chatHub.ConnectionCount())
}
