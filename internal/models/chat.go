package models

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

// ConversationType distinguishes two-party threads from groups.
type ConversationType string

// Conversation types.
const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// MessageType is the kind of payload a message carries.
type MessageType string

// Message types.
const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

// MaxMessageContentLen bounds message content in runes.
const MaxMessageContentLen = 10000

// MinGroupParticipants is how many members a group needs besides its creator.
const MinGroupParticipants = 2

// LastMessage is the denormalized summary shown in conversation lists.
// Messages remain the source of truth.
type LastMessage struct {
	Content   string     `json:"content"`
	SenderID  *uint      `json:"sender_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Conversation represents a chat thread, private (exactly two users) or group.
type Conversation struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Type        ConversationType `gorm:"size:16;not null;index" json:"type"`
	Name        string           `json:"name,omitempty"`
	Avatar      string           `json:"avatar,omitempty"`
	CreatedBy   *uint            `gorm:"index" json:"created_by,omitempty"`
	PrivateKey  *string          `gorm:"size:64;uniqueIndex" json:"-"`
	LastMessage LastMessage      `gorm:"embedded;embeddedPrefix:last_message_" json:"last_message"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	Participants []User                    `gorm:"many2many:conversation_participants;" json:"participants,omitempty"`
	Members      []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"-"`
	UnreadCount  map[uint]int              `gorm:"-" json:"unread_count"`
}

// IsGroup reports whether the conversation is a group.
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// ParticipantIDs returns the participant ids from whichever association is loaded.
func (c *Conversation) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Members))
	if len(c.Members) > 0 {
		for _, m := range c.Members {
			ids = append(ids, m.UserID)
		}
	} else {
		for _, p := range c.Participants {
			ids = append(ids, p.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasParticipant reports whether userID is among the loaded participants.
func (c *Conversation) HasParticipant(userID uint) bool {
	for _, id := range c.ParticipantIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

// IndexUnread rebuilds UnreadCount from the loaded participant rows.
func (c *Conversation) IndexUnread() {
	c.UnreadCount = make(map[uint]int, len(c.Members))
	for _, m := range c.Members {
		c.UnreadCount[m.UserID] = m.UnreadCount
	}
}

// PrivatePairKey is the order-independent key of a private conversation.
func PrivatePairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// UniqueIDs returns ids without duplicates or zeros, in ascending order.
func UniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateParticipants enforces the participant-count invariant of a conversation type.
// ids must already be deduplicated and, for groups, include the creator.
func ValidateParticipants(t ConversationType, ids []uint) error {
	switch t {
	case ConversationPrivate:
		if len(ids) != 2 || ids[0] == ids[1] {
			return NewValidationError("A private conversation needs exactly 2 distinct participants")
		}
	case ConversationGroup:
		if len(ids) < MinGroupParticipants+1 {
			return NewValidationError(fmt.Sprintf("A group conversation needs at least %d participants besides its creator", MinGroupParticipants))
		}
	default:
		return NewValidationError(fmt.Sprintf("Unknown conversation type %q", t))
	}
	return nil
}

// ConversationParticipant is the join row holding per-participant unread state.
type ConversationParticipant struct {
	ConversationID uint       `gorm:"primaryKey;autoIncrement:false" json:"conversation_id"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	UnreadCount    int        `gorm:"not null;default:0" json:"unread_count"`
}

// Attachment references an uploaded file by URL.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is an immutable chat message.
type Message struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	ConversationID uint         `gorm:"not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	SenderID       uint         `gorm:"not null;index" json:"sender_id"`
	Sender         *User        `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string       `gorm:"type:text;not null" json:"content"`
	Type           MessageType  `gorm:"size:16;not null;default:'text'" json:"type"`
	Attachments    []Attachment `gorm:"serializer:json;type:text" json:"attachments"`
	CreatedAt      time.Time    `gorm:"index:idx_messages_conversation_created,priority:2" json:"created_at"`

	Reads  []MessageRead `gorm:"foreignKey:MessageID" json:"-"`
	ReadBy []uint        `gorm:"-" json:"read_by"`
}

// Validate checks the caller-supplied fields of a new message.
func (m *Message) Validate() error {
	if m.Type == "" {
		m.Type = MessageText
	}
	if !m.Type.Valid() {
		return NewValidationError(fmt.Sprintf("Unknown message type %q", m.Type))
	}
	if m.Content == "" && len(m.Attachments) == 0 {
		return NewValidationError("Message content is required")
	}
	if utf8.RuneCountInString(m.Content) > MaxMessageContentLen {
		return NewValidationError(fmt.Sprintf("Message content too long (max %d characters)", MaxMessageContentLen))
	}
	for _, a := range m.Attachments {
		if a.URL == "" {
			return NewValidationError("Attachment URL is required")
		}
	}
	return nil
}

// IndexReads rebuilds ReadBy from the loaded read rows.
func (m *Message) IndexReads() {
	m.ReadBy = make([]uint, 0, len(m.Reads))
	for _, r := range m.Reads {
		m.ReadBy = append(m.ReadBy, r.UserID)
	}
	sort.Slice(m.ReadBy, func(i, j int) bool { return m.ReadBy[i] < m.ReadBy[j] })
}

// MessageRead records that a user has acknowledged a message. The composite key
// gives readBy its set semantics.
type MessageRead struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	ReadAt    time.Time `gorm:"autoCreateTime" json:"read_at"`
}
