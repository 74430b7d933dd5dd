// Package service provides application business logic: chat, catalogue access and the assistant.
package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"academy/internal/access"
	"academy/internal/models"
	"academy/internal/observability"
	"academy/internal/repository"
)

// Message history pagination.
const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 100
	maxGroupNameLen        = 100
)

// ChatService provides conversation and messaging business logic.
type ChatService struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
	now      func() time.Time
}

// GroupInput is the input for creating a group conversation.
type GroupInput struct {
	CreatorID      uint
	ParticipantIDs []uint
	Name           string
	Avatar         string
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	UserID         uint
	ConversationID uint
	Content        string
	Type           models.MessageType
	Attachments    []models.Attachment
}

// ReadReceipt is what other participants learn when a user acknowledges messages.
type ReadReceipt struct {
	ConversationID uint      `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	MessageIDs     []uint    `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
	ParticipantIDs []uint    `json:"-"`
}

// MessagePage is one page of conversation history, oldest first.
type MessagePage struct {
	Messages      []*models.Message `json:"messages"`
	Page          int               `json:"page"`
	Limit         int               `json:"limit"`
	TotalPages    int               `json:"total_pages"`
	TotalMessages int64             `json:"total_messages"`
}

// NewChatService returns a new ChatService.
func NewChatService(chatRepo repository.ChatRepository, userRepo repository.UserRepository) *ChatService {
	return &ChatService{chatRepo: chatRepo, userRepo: userRepo, now: time.Now}
}

// CanUseChat is the tier gate in front of every chat operation.
func (s *ChatService) CanUseChat(user *models.User) bool {
	return access.CanUseChat(user, s.now())
}

// CreateOrGetPrivateConversation returns the private conversation between a
// and b, creating it on first use.
func (s *ChatService) CreateOrGetPrivateConversation(ctx context.Context, a, b uint) (*models.Conversation, error) {
	if a == 0 || b == 0 {
		return nil, models.NewValidationError("Both participants are required")
	}
	if a == b {
		return nil, models.NewValidationError("Cannot start a private conversation with yourself")
	}

	existing, err := s.chatRepo.FindPrivate(ctx, a, b)
	if err == nil {
		return existing, nil
	}
	if models.ErrorCode(err) != models.CodeNotFound {
		return nil, err
	}

	if _, err := s.userRepo.GetByID(ctx, b); err != nil {
		return nil, err
	}

	conv := &models.Conversation{Type: models.ConversationPrivate}
	err = s.chatRepo.CreateConversation(ctx, conv, []uint{a, b})
	if models.ErrorCode(err) == models.CodeConflict {
		// Lost the race against a concurrent creator.
		return s.chatRepo.FindPrivate(ctx, a, b)
	}
	if err != nil {
		return nil, err
	}
	return s.chatRepo.GetConversation(ctx, conv.ID)
}

// CreateGroupConversation creates a named group. The creator is always a
// member and every other id must be an existing user.
func (s *ChatService) CreateGroupConversation(ctx context.Context, in GroupInput) (*models.Conversation, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewValidationError("Group conversations require a name")
	}
	if len([]rune(name)) > maxGroupNameLen {
		return nil, models.NewValidationError("Group name too long (max 100 characters)")
	}
	if in.CreatorID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	members := models.UniqueIDs(append([]uint{in.CreatorID}, in.ParticipantIDs...))
	if err := models.ValidateParticipants(models.ConversationGroup, members); err != nil {
		return nil, err
	}

	creator := in.CreatorID
	conv := &models.Conversation{
		Type:      models.ConversationGroup,
		Name:      name,
		Avatar:    strings.TrimSpace(in.Avatar),
		CreatedBy: &creator,
	}
	if err := s.chatRepo.CreateConversation(ctx, conv, members); err != nil {
		return nil, err
	}
	return s.chatRepo.GetConversation(ctx, conv.ID)
}

// GetConversations returns the user's conversations, most recently active first.
func (s *ChatService) GetConversations(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	return s.chatRepo.ListForUser(ctx, userID)
}

// GetConversationForUser returns the conversation if the user is a participant.
func (s *ChatService) GetConversationForUser(ctx context.Context, convID, userID uint) (*models.Conversation, error) {
	conv, err := s.chatRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errNotParticipant()
	}
	return conv, nil
}

// EnsureParticipant checks membership against the store.
func (s *ChatService) EnsureParticipant(ctx context.Context, convID, userID uint) error {
	ok, err := s.chatRepo.IsParticipant(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.chatRepo.GetConversation(ctx, convID); err != nil {
			return err
		}
		return errNotParticipant()
	}
	return nil
}

func errNotParticipant() error {
	return models.NewForbiddenError("You are not a participant in this conversation")
}

// SendMessage persists a message and updates unread counters. The returned
// conversation carries the participant list for fan-out.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (_ *models.Message, _ *models.Conversation, err error) {
	ctx, span := observability.StartChatSpan(ctx, "send_message", in.ConversationID, in.UserID)
	defer func() { observability.EndSpan(span, err) }()

	message := &models.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.UserID,
		Content:        strings.TrimSpace(in.Content),
		Type:           in.Type,
		Attachments:    in.Attachments,
	}
	if err := message.Validate(); err != nil {
		return nil, nil, err
	}

	conv, err := s.chatRepo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.HasParticipant(in.UserID) {
		return nil, nil, errNotParticipant()
	}

	message.CreatedAt = s.now()
	if err := s.chatRepo.SaveMessage(ctx, message); err != nil {
		return nil, nil, err
	}
	observability.MessageThroughput.WithLabelValues(string(conv.Type)).Inc()

	for i := range conv.Participants {
		if conv.Participants[i].ID == in.UserID {
			message.Sender = &conv.Participants[i]
			break
		}
	}
	return message, conv, nil
}

// MarkRead acknowledges messages for userID and resets their unread counter.
// An omitted or empty messageIDs acknowledges everything the user has not
// read; a non-empty list holding no usable id is rejected.
func (s *ChatService) MarkRead(ctx context.Context, userID, convID uint, messageIDs []uint) (_ *ReadReceipt, err error) {
	ctx, span := observability.StartChatSpan(ctx, "mark_read", convID, userID)
	defer func() { observability.EndSpan(span, err) }()

	participants, err := s.chatRepo.ParticipantIDs(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(participants, userID) {
		if len(participants) == 0 {
			return nil, models.NewNotFoundError("Conversation", convID)
		}
		return nil, errNotParticipant()
	}

	ids := models.UniqueIDs(messageIDs)
	if len(messageIDs) > 0 && len(ids) == 0 {
		// An explicit list must not collapse into "everything".
		return nil, models.NewValidationError("message_ids must contain valid message ids")
	}

	at := s.now()
	valid, err := s.chatRepo.MarkRead(ctx, convID, userID, ids, at)
	if err != nil {
		return nil, err
	}
	return &ReadReceipt{
		ConversationID: convID,
		UserID:         userID,
		MessageIDs:     valid,
		ReadAt:         at,
		ParticipantIDs: participants,
	}, nil
}

// DeleteConversation removes a conversation with its history. Any participant
// may delete a private conversation; only the creator may delete a group.
// It returns the former participants so they can be notified.
func (s *ChatService) DeleteConversation(ctx context.Context, userID, convID uint) (_ []uint, err error) {
	ctx, span := observability.StartChatSpan(ctx, "delete_conversation", convID, userID)
	defer func() { observability.EndSpan(span, err) }()

	conv, err := s.chatRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errNotParticipant()
	}
	if conv.IsGroup() && (conv.CreatedBy == nil || *conv.CreatedBy != userID) {
		return nil, models.NewForbiddenError("Only the group creator can delete this conversation")
	}
	if err := s.chatRepo.DeleteConversation(ctx, convID); err != nil {
		return nil, err
	}
	return conv.ParticipantIDs(), nil
}

// GetMessagesForUser returns one page of history. Page 1 holds the newest
// messages; each page is ordered oldest first.
func (s *ChatService) GetMessagesForUser(ctx context.Context, convID, userID uint, page, limit int) (*MessagePage, error) {
	if err := s.EnsureParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	limit = min(limit, MaxMessagePageSize)

	messages, total, err := s.chatRepo.ListMessages(ctx, convID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return &MessagePage{
		Messages:      messages,
		Page:          page,
		Limit:         limit,
		TotalPages:    int((total + int64(limit) - 1) / int64(limit)),
		TotalMessages: total,
	}, nil
}
