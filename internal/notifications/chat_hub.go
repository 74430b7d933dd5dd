package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"academy/internal/middleware"
	"academy/internal/observability"
)

const (
	defaultMaxConnsPerUser = 12
	maxTotalConns          = 10000
)

var (
	// ErrUserConnLimit is returned when a user already has the maximum number of sockets.
	ErrUserConnLimit = errors.New("user connection limit reached")
	// ErrServerConnLimit is returned when the process is full.
	ErrServerConnLimit = errors.New("server connection limit reached")
)

var chatLog = observability.NewChatLogger("chat")

// ChatHub tracks chat connections and the conversation rooms they joined.
// Frames for a room go to every connection joined to it.
type ChatHub struct {
	mu sync.RWMutex

	// userID -> connections (multi-device)
	users map[uint]map[*Client]struct{}
	// conversationID -> joined connections
	rooms map[uint]map[*Client]struct{}
	// connection -> joined conversations
	joined map[*Client]map[uint]struct{}
	total  int

	maxConnsPerUser int
	notifier        *Notifier
}

// relay is what travels through Redis between processes.
type relay struct {
	Except uint            `json:"except,omitempty"`
	Close  bool            `json:"close,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// NewChatHub creates a hub. With an enabled notifier, Publish* calls go
// through Redis and StartWiring must be called to receive them.
func NewChatHub(maxConnsPerUser int, notifier *Notifier) *ChatHub {
	if maxConnsPerUser <= 0 {
		maxConnsPerUser = defaultMaxConnsPerUser
	}
	return &ChatHub{
		users:           make(map[uint]map[*Client]struct{}),
		rooms:           make(map[uint]map[*Client]struct{}),
		joined:          make(map[*Client]map[uint]struct{}),
		maxConnsPerUser: maxConnsPerUser,
		notifier:        notifier,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat" }

// Register adds an authenticated connection.
func (h *ChatHub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= maxTotalConns {
		return ErrServerConnLimit
	}
	conns := h.users[c.UserID]
	if len(conns) >= h.maxConnsPerUser {
		return ErrUserConnLimit
	}
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.users[c.UserID] = conns
	}
	conns[c] = struct{}{}
	h.total++
	observability.WebSocketConnectionsTotal.Inc()
	return nil
}

// UnregisterClient removes the connection from every room and closes its
// outbound channel. Unknown clients are ignored.
func (h *ChatHub) UnregisterClient(c *Client) {
	h.mu.Lock()
	conns, ok := h.users[c.UserID]
	if _, registered := conns[c]; !ok || !registered {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.users, c.UserID)
	}
	for convID := range h.joined[c] {
		h.removeFromRoomLocked(convID, c)
	}
	delete(h.joined, c)
	h.total--
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Dec()
	c.close()
}

func (h *ChatHub) removeFromRoomLocked(convID uint, c *Client) {
	if room, ok := h.rooms[convID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, convID)
		}
	}
}

// Join adds the connection to a conversation room. Membership must already
// have been checked.
func (h *ChatHub) Join(c *Client, convID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.users[c.UserID][c]; !ok {
		return
	}
	room := h.rooms[convID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[convID] = room
	}
	room[c] = struct{}{}
	if h.joined[c] == nil {
		h.joined[c] = make(map[uint]struct{})
	}
	h.joined[c][convID] = struct{}{}
}

// Leave removes the connection from a room. It reports whether it was joined.
func (h *ChatHub) Leave(c *Client, convID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.joined[c][convID]; !ok {
		return false
	}
	delete(h.joined[c], convID)
	h.removeFromRoomLocked(convID, c)
	return true
}

// IsJoined reports whether the connection is in the room.
func (h *ChatHub) IsJoined(c *Client, convID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joined[c][convID]
	return ok
}

// JoinedUsers returns the users with at least one connection in the room, ascending.
func (h *ChatHub) JoinedUsers(convID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[uint]struct{})
	for c := range h.rooms[convID] {
		seen[c.UserID] = struct{}{}
	}
	return sortedIDs(seen)
}

// HasConnection reports whether the user has a socket on this process.
func (h *ChatHub) HasConnection(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// ConnectionID returns the ID of one of the user's local sockets, used to
// hand presence over when the socket that owned it goes away.
func (h *ChatHub) ConnectionID(userID uint) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		return c.ID, true
	}
	return "", false
}

// ConnectionCount returns the number of registered sockets.
func (h *ChatHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Deliver sends frame to local connections in the room, skipping exceptUserID.
func (h *ChatHub) Deliver(convID uint, frame []byte, exceptUserID uint) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[convID] {
		if exceptUserID != 0 && c.UserID == exceptUserID {
			continue
		}
		c.TrySend(frame)
	}
}

// DeliverAll sends frame to every local connection.
func (h *ChatHub) DeliverAll(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.users {
		for c := range conns {
			c.TrySend(frame)
		}
	}
}

// closeRoom delivers frame to the room and then empties it.
func (h *ChatHub) closeRoom(convID uint, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[convID] {
		c.TrySend(frame)
		delete(h.joined[c], convID)
	}
	delete(h.rooms, convID)
}

// PublishToConversation fans frame out to the room on every process. It must
// only be called after the event it describes is durable.
func (h *ChatHub) PublishToConversation(ctx context.Context, convID uint, frame []byte, exceptUserID uint) {
	h.publish(ctx, convID, relay{Except: exceptUserID, Frame: frame})
}

// CloseConversation tells the room that the conversation is gone and removes it.
func (h *ChatHub) CloseConversation(ctx context.Context, convID uint, frame []byte) {
	h.publish(ctx, convID, relay{Close: true, Frame: frame})
}

func (h *ChatHub) publish(ctx context.Context, convID uint, r relay) {
	if h.notifier.Enabled() {
		payload, err := json.Marshal(r)
		if err == nil {
			err = h.notifier.PublishConversation(ctx, convID, payload)
		}
		if err == nil {
			return
		}
		middleware.Logger.WarnContext(ctx, "chat relay publish failed, delivering locally",
			slog.Uint64("conversation_id", uint64(convID)),
			slog.String("error", err.Error()),
		)
	}
	h.apply(convID, r)
}

// PublishAll fans frame out to every connection on every process.
func (h *ChatHub) PublishAll(ctx context.Context, frame []byte) {
	if h.notifier.Enabled() {
		payload, err := json.Marshal(relay{Frame: frame})
		if err == nil {
			err = h.notifier.PublishBroadcast(ctx, payload)
		}
		if err == nil {
			return
		}
		middleware.Logger.WarnContext(ctx, "chat broadcast publish failed, delivering locally", slog.String("error", err.Error()))
	}
	h.DeliverAll(frame)
}

func (h *ChatHub) apply(convID uint, r relay) {
	if r.Close {
		h.closeRoom(convID, r.Frame)
		return
	}
	h.Deliver(convID, r.Frame, r.Except)
}

// StartWiring subscribes the hub to the Redis relay. Without a notifier it is a no-op.
func (h *ChatHub) StartWiring(ctx context.Context) error {
	return h.notifier.StartChatSubscriber(ctx, func(channel, payload string) {
		var r relay
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			middleware.Logger.Warn("chat relay: malformed payload",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
			return
		}
		if channel == BroadcastChannel {
			h.DeliverAll(r.Frame)
			return
		}
		convID, ok := ParseConversationChannel(channel)
		if !ok {
			middleware.Logger.Warn("chat relay: unknown channel", slog.String("channel", channel))
			return
		}
		h.apply(convID, r)
	})
}

// Shutdown closes every connection.
func (h *ChatHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0, h.total)
	for _, conns := range h.users {
		for c := range conns {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	bye := ErrorFrame("Server is shutting down", "SHUTDOWN")
	for _, c := range clients {
		c.TrySend(bye)
		h.UnregisterClient(c)
	}
	return nil
}

func sortedIDs(set map[uint]struct{}) []uint {
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
