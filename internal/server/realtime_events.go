package server

import (
	"context"
	"strconv"
	"unicode/utf8"

	"academy/internal/models"
	"academy/internal/notifications"
	"academy/internal/service"
)

const pushPreviewRunes = 120

// Every publish below happens after the change it describes is committed.

func (s *Server) publishMessage(ctx context.Context, msg *models.Message, conv *models.Conversation) {
	s.chatHub.PublishToConversation(ctx, conv.ID,
		notifications.MustEncode(notifications.EventMessageNew, notifications.MessageNewData{
			ConversationID: conv.ID,
			Message:        msg,
		}), 0)

	s.pushOffline(ctx, msg, conv)
}

// pushOffline notifies participants with no live connection anywhere.
func (s *Server) pushOffline(ctx context.Context, msg *models.Message, conv *models.Conversation) {
	online := make(map[uint]struct{})
	for _, id := range s.connections.OnlineUserIDs(ctx) {
		online[id] = struct{}{}
	}
	recipients := make([]uint, 0, len(conv.Participants))
	for _, id := range conv.ParticipantIDs() {
		if id != msg.SenderID {
			recipients = append(recipients, id)
		}
	}

	title := conv.Name
	if msg.Sender != nil && !conv.IsGroup() {
		title = msg.Sender.Username
	}
	notifications.NotifyOffline(ctx, s.pusher, func(id uint) bool {
		_, ok := online[id]
		return ok
	}, recipients, notifications.PushNotification{
		Title: title,
		Body:  pushPreview(msg),
		Data: map[string]string{
			"conversation_id": strconv.FormatUint(uint64(conv.ID), 10),
			"message_id":      strconv.FormatUint(uint64(msg.ID), 10),
		},
	})
}

func pushPreview(msg *models.Message) string {
	if msg.Content == "" && len(msg.Attachments) > 0 {
		return "Attachment"
	}
	if utf8.RuneCountInString(msg.Content) <= pushPreviewRunes {
		return msg.Content
	}
	return string([]rune(msg.Content)[:pushPreviewRunes]) + "…"
}

func (s *Server) publishReadReceipt(ctx context.Context, r *service.ReadReceipt) {
	s.chatHub.PublishToConversation(ctx, r.ConversationID,
		notifications.MustEncode(notifications.EventMessageRead, notifications.ReadReceiptData{
			ConversationID: r.ConversationID,
			UserID:         r.UserID,
			MessageIDs:     r.MessageIDs,
			ReadAt:         r.ReadAt,
		}), 0)
}

func (s *Server) publishTyping(ctx context.Context, event string, convID, userID uint) {
	s.chatHub.PublishToConversation(ctx, convID,
		notifications.MustEncode(event, notifications.TypingData{ConversationID: convID, UserID: userID}),
		userID)
}

func (s *Server) publishConversationDeleted(ctx context.Context, convID uint) {
	s.chatHub.CloseConversation(ctx, convID,
		notifications.MustEncode(notifications.EventConversationDeleted, notifications.ConversationRef{ConversationID: convID}))
}

// publishOnline sends the full online snapshot to every connection.
func (s *Server) publishOnline(ctx context.Context) {
	s.chatHub.PublishAll(ctx, notifications.MustEncode(notifications.EventUserOnline,
		notifications.OnlineData{UserIDs: s.connections.OnlineUserIDs(ctx)}))
}

func (s *Server) publishOffline(ctx context.Context, userID uint) {
	s.chatHub.PublishAll(ctx, notifications.MustEncode(notifications.EventUserOffline,
		notifications.UserRef{UserID: userID}))
	s.publishOnline(ctx)
}
