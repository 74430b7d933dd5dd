package notifications

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"academy/internal/cache"
	"academy/internal/middleware"
	"academy/internal/observability"

	"github.com/redis/go-redis/v9"
)

// ConnectionManager owns presence and typing state. Only connection
// lifecycle handlers mutate it.
//
// Presence maps each user to the connection that announced it most recently.
// A disconnect clears the entry only when it still points at that connection.
// Presence is mirrored to a Redis hash counting, per user, the processes
// that hold a connection for them. A process only removes a user when its
// own count was the last one, so a disconnect here never hides a user still
// connected elsewhere.
type ConnectionManager struct {
	rdb       *redis.Client
	onlineKey string

	mu     sync.Mutex
	online map[uint]string
	typing map[uint]map[uint]struct{}
}

// releasePresence decrements a user's process count and drops the field at
// zero, atomically so a concurrent increment is never deleted.
var releasePresence = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

// DisconnectResult describes what a disconnect changed.
type DisconnectResult struct {
	// TypingStopped lists conversations the user was typing in.
	TypingStopped []uint
	// WentOffline is false when a newer connection of the user owns presence.
	WentOffline bool
}

// NewConnectionManager creates a manager. rdb may be nil.
func NewConnectionManager(rdb *redis.Client) *ConnectionManager {
	return &ConnectionManager{
		rdb:       rdb,
		onlineKey: cache.OnlineUsersKey,
		online:    make(map[uint]string),
		typing:    make(map[uint]map[uint]struct{}),
	}
}

// Connect records connID as the user's presence.
func (m *ConnectionManager) Connect(ctx context.Context, userID uint, connID string) {
	m.mu.Lock()
	_, present := m.online[userID]
	m.online[userID] = connID
	observability.OnlineUsers.Set(float64(len(m.online)))
	m.mu.Unlock()

	if present || m.rdb == nil {
		return
	}
	if err := m.rdb.HIncrBy(ctx, m.onlineKey, presenceField(userID), 1).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "presence HINCRBY failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
}

// Disconnect removes the user from every typing set and, when connID still
// owns the user's presence, from the online set.
func (m *ConnectionManager) Disconnect(ctx context.Context, userID uint, connID string) DisconnectResult {
	var res DisconnectResult

	m.mu.Lock()
	stopped := make(map[uint]struct{})
	for convID, users := range m.typing {
		if _, ok := users[userID]; ok {
			delete(users, userID)
			stopped[convID] = struct{}{}
			if len(users) == 0 {
				delete(m.typing, convID)
			}
		}
	}
	res.TypingStopped = sortedIDs(stopped)
	if m.online[userID] == connID {
		delete(m.online, userID)
		res.WentOffline = true
	}
	observability.OnlineUsers.Set(float64(len(m.online)))
	m.mu.Unlock()

	if res.WentOffline && m.rdb != nil {
		if err := releasePresence.Run(ctx, m.rdb, []string{m.onlineKey}, presenceField(userID)).Err(); err != nil {
			middleware.Logger.WarnContext(ctx, "presence release failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		}
	}
	return res
}

// StartTyping adds the user to the conversation's typing set. It reports
// whether the set changed.
func (m *ConnectionManager) StartTyping(convID, userID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := m.typing[convID]
	if users == nil {
		users = make(map[uint]struct{})
		m.typing[convID] = users
	}
	if _, ok := users[userID]; ok {
		return false
	}
	users[userID] = struct{}{}
	return true
}

// StopTyping removes the user from the conversation's typing set. It reports
// whether the set changed.
func (m *ConnectionManager) StopTyping(convID, userID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.typing[convID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(m.typing, convID)
	}
	return true
}

// TypingUsers returns who is typing in the conversation, ascending.
func (m *ConnectionManager) TypingUsers(convID uint) []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedIDs(m.typing[convID])
}

// IsOnline reports local presence.
func (m *ConnectionManager) IsOnline(userID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.online[userID]
	return ok
}

// OnlineUserIDs returns the online snapshot, ascending: local presence
// unioned with users other processes have counted in Redis.
func (m *ConnectionManager) OnlineUserIDs(ctx context.Context) []uint {
	m.mu.Lock()
	set := make(map[uint]struct{}, len(m.online))
	for id := range m.online {
		set[id] = struct{}{}
	}
	m.mu.Unlock()

	if m.rdb != nil {
		members, err := m.rdb.HKeys(ctx, m.onlineKey).Result()
		if err != nil {
			middleware.Logger.WarnContext(ctx, "presence HKEYS failed", slog.String("error", err.Error()))
		}
		for _, raw := range members {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || id == 0 {
				continue
			}
			set[uint(id)] = struct{}{}
		}
	}
	return sortedIDs(set)
}

func presenceField(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
