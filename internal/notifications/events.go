package notifications

import (
	"encoding/json"
	"time"

	"academy/internal/models"
)

// Client to server events.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventMessageRead       = "message:read"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
)

// Server to client events. message:read and the typing events reuse the
// client names above.
const (
	EventMessageNew          = "message:new"
	EventUserOnline          = "user:online"
	EventUserOffline         = "user:offline"
	EventConversationJoined  = "conversation:joined"
	EventConversationLeft    = "conversation:left"
	EventConversationDeleted = "conversation:deleted"
	EventError               = "error"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConversationRef is the data of join, leave and typing frames.
type ConversationRef struct {
	ConversationID uint `json:"conversation_id"`
}

// SendMessageData is the data of an inbound message:send.
type SendMessageData struct {
	ConversationID uint                `json:"conversation_id"`
	Content        string              `json:"content"`
	Type           models.MessageType  `json:"type,omitempty"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
}

// ReadData is the data of an inbound message:read.
type ReadData struct {
	ConversationID uint   `json:"conversation_id"`
	MessageIDs     []uint `json:"message_ids"`
}

// MessageNewData is the data of message:new.
type MessageNewData struct {
	ConversationID uint            `json:"conversation_id"`
	Message        *models.Message `json:"message"`
}

// ReadReceiptData is the data of an outbound message:read.
type ReadReceiptData struct {
	ConversationID uint      `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	MessageIDs     []uint    `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
}

// TypingData is the data of outbound typing events.
type TypingData struct {
	ConversationID uint `json:"conversation_id"`
	UserID         uint `json:"user_id"`
}

// OnlineData is the full presence snapshot sent as user:online.
type OnlineData struct {
	UserIDs []uint `json:"user_ids"`
}

// UserRef is the data of user:offline.
type UserRef struct {
	UserID uint `json:"user_id"`
}

// ErrorData is the data of error frames.
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Encode builds a frame. data must be JSON-serializable.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// MustEncode is Encode for payloads built from the types above, which always marshal.
func MustEncode(event string, data any) []byte {
	b, err := Encode(event, data)
	if err != nil {
		panic(err)
	}
	return b
}

// ErrorFrame builds an error frame.
func ErrorFrame(message, code string) []byte {
	return MustEncode(EventError, ErrorData{Message: message, Code: code})
}

var droppedNotice = ErrorFrame("Some messages were dropped, please re-fetch", "BUFFER_FULL")
