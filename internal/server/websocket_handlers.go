package server

import (
	"context"
	"encoding/json"
	"errors"

	"academy/internal/models"
	"academy/internal/notifications"
	"academy/internal/observability"
	"academy/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

var chatLog = observability.NewChatLogger("chat")

// WebSocketChatHandler serves /ws/chat. The route middleware has already
// authenticated the user and checked the chat tier, so every socket that
// reaches here is Ready.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, ok := conn.Locals(localUser).(*models.User)
		if !ok || user == nil {
			_ = conn.WriteMessage(websocket.TextMessage, notifications.ErrorFrame("Unauthorized", models.CodeUnauthorized))
			_ = conn.Close()
			return
		}

		client := notifications.NewClient(s.chatHub, conn, user.ID, s.config.ChatMessagesPerSecond)
		client.Username = user.Username
		if err := s.chatHub.Register(client); err != nil {
			chatLog.EventFailed(s.baseContext(), user.ID, "register", err)
			_ = conn.WriteMessage(websocket.TextMessage, notifications.ErrorFrame(err.Error(), models.CodeRateLimited))
			_ = conn.Close()
			return
		}
		client.IncomingHandler = s.handleChatFrame

		ctx := s.baseContext()
		chatLog.Connected(ctx, user.ID, client.ID)
		s.connections.Connect(ctx, user.ID, client.ID)
		s.publishOnline(ctx)

		go client.WritePump()
		client.ReadPump()
		client.WaitWriter()

		s.handleChatDisconnect(s.baseContext(), client)
	}, websocket.Config{
		HandshakeTimeout: s.config.ChatAuthTimeout(),
	})
}

// handleChatDisconnect clears typing and presence after the read loop ends.
// When another socket of the same user is still open on this process,
// presence moves to it instead of going offline.
func (s *Server) handleChatDisconnect(ctx context.Context, client *notifications.Client) {
	res := s.connections.Disconnect(ctx, client.UserID, client.ID)
	for _, convID := range res.TypingStopped {
		s.publishTyping(ctx, notifications.EventTypingStop, convID, client.UserID)
	}

	reason := "closed"
	if res.WentOffline {
		if next, ok := s.chatHub.ConnectionID(client.UserID); ok {
			s.connections.Connect(ctx, client.UserID, next)
			reason = "handover"
		} else {
			s.publishOffline(ctx, client.UserID)
			reason = "offline"
		}
	}
	chatLog.Disconnected(ctx, client.UserID, client.ID, reason)
}

// handleChatFrame dispatches one inbound frame. Failures answer the sending
// socket with an error frame and never close it.
func (s *Server) handleChatFrame(c *notifications.Client, raw []byte) {
	var env notifications.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		c.TrySend(notifications.ErrorFrame("Invalid message format", models.CodeValidation))
		return
	}
	observability.WebSocketEventsTotal.WithLabelValues(env.Event).Inc()

	ctx, cancel := context.WithTimeout(s.baseContext(), s.config.ChatAuthTimeout())
	defer cancel()

	var err error
	switch env.Event {
	case notifications.EventConversationJoin:
		err = s.wsJoin(ctx, c, env.Data)
	case notifications.EventConversationLeave:
		err = s.wsLeave(c, env.Data)
	case notifications.EventMessageSend:
		err = s.wsSend(ctx, c, env.Data)
	case notifications.EventMessageRead:
		err = s.wsRead(ctx, c, env.Data)
	case notifications.EventTypingStart, notifications.EventTypingStop:
		err = s.wsTyping(ctx, c, env.Event, env.Data)
	default:
		err = models.NewValidationError("Unknown event " + env.Event)
	}
	if err != nil {
		s.sendFrameError(ctx, c, env.Event, err)
	}
}

func (s *Server) sendFrameError(ctx context.Context, c *notifications.Client, event string, err error) {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		chatLog.EventFailed(ctx, c.UserID, event, err)
		c.TrySend(notifications.ErrorFrame("Internal server error", models.CodeInternal))
		return
	}
	c.TrySend(notifications.ErrorFrame(appErr.Message, appErr.Code))
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return models.NewValidationError("Missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return models.NewValidationError("Invalid event data")
	}
	return nil
}

func conversationRef(data json.RawMessage) (uint, error) {
	var ref notifications.ConversationRef
	if err := decodeData(data, &ref); err != nil {
		return 0, err
	}
	if ref.ConversationID == 0 {
		return 0, models.NewValidationError("conversation_id is required")
	}
	return ref.ConversationID, nil
}

func (s *Server) wsJoin(ctx context.Context, c *notifications.Client, data json.RawMessage) error {
	convID, err := conversationRef(data)
	if err != nil {
		return err
	}
	if err := s.chatService.EnsureParticipant(ctx, convID, c.UserID); err != nil {
		return err
	}
	s.chatHub.Join(c, convID)
	c.TrySend(notifications.MustEncode(notifications.EventConversationJoined, notifications.ConversationRef{ConversationID: convID}))
	return nil
}

func (s *Server) wsLeave(c *notifications.Client, data json.RawMessage) error {
	convID, err := conversationRef(data)
	if err != nil {
		return err
	}
	s.chatHub.Leave(c, convID)
	c.TrySend(notifications.MustEncode(notifications.EventConversationLeft, notifications.ConversationRef{ConversationID: convID}))
	return nil
}

func (s *Server) wsSend(ctx context.Context, c *notifications.Client, data json.RawMessage) error {
	var in notifications.SendMessageData
	if err := decodeData(data, &in); err != nil {
		return err
	}
	msg, conv, err := s.chatService.SendMessage(ctx, service.SendMessageInput{
		UserID:         c.UserID,
		ConversationID: in.ConversationID,
		Content:        in.Content,
		Type:           in.Type,
		Attachments:    in.Attachments,
	})
	if err != nil {
		return err
	}
	s.publishMessage(ctx, msg, conv)
	if s.connections.StopTyping(conv.ID, c.UserID) {
		s.publishTyping(ctx, notifications.EventTypingStop, conv.ID, c.UserID)
	}
	return nil
}

func (s *Server) wsRead(ctx context.Context, c *notifications.Client, data json.RawMessage) error {
	var in notifications.ReadData
	if err := decodeData(data, &in); err != nil {
		return err
	}
	receipt, err := s.chatService.MarkRead(ctx, c.UserID, in.ConversationID, in.MessageIDs)
	if err != nil {
		return err
	}
	s.publishReadReceipt(ctx, receipt)
	return nil
}

// wsTyping only accepts typing for rooms the socket has joined. Repeats that
// do not change the typing set are not rebroadcast.
func (s *Server) wsTyping(ctx context.Context, c *notifications.Client, event string, data json.RawMessage) error {
	convID, err := conversationRef(data)
	if err != nil {
		return err
	}
	if !s.chatHub.IsJoined(c, convID) {
		return models.NewForbiddenError("Join the conversation first")
	}

	var changed bool
	if event == notifications.EventTypingStart {
		changed = s.connections.StartTyping(convID, c.UserID)
	} else {
		changed = s.connections.StopTyping(convID, c.UserID)
	}
	if changed {
		s.publishTyping(ctx, event, convID, c.UserID)
	}
	return nil
}
