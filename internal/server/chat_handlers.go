package server

import (
	"academy/internal/models"
	"academy/internal/notifications"
	"academy/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetConversations handles GET /api/conversations
func (s *Server) GetConversations(c *fiber.Ctx) error {
	conversations, err := s.chatService.GetConversations(c.UserContext(), c.Locals(localUserID).(uint))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conversations)
}

// GetConversation handles GET /api/conversations/:id
func (s *Server) GetConversation(c *fiber.Ctx) error {
	convID, err := pathID(c, "conversation")
	if err != nil {
		return respondError(c, err)
	}
	conv, err := s.chatService.GetConversationForUser(c.UserContext(), convID, c.Locals(localUserID).(uint))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// CreatePrivateConversation handles POST /api/conversations/private. It
// returns the existing conversation when the pair already has one.
func (s *Server) CreatePrivateConversation(c *fiber.Ctx) error {
	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	conv, err := s.chatService.CreateOrGetPrivateConversation(c.UserContext(), c.Locals(localUserID).(uint), req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// CreateGroupConversation handles POST /api/conversations/group
func (s *Server) CreateGroupConversation(c *fiber.Ctx) error {
	var req struct {
		Name           string `json:"name"`
		Avatar         string `json:"avatar"`
		ParticipantIDs []uint `json:"participant_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	conv, err := s.chatService.CreateGroupConversation(c.UserContext(), service.GroupInput{
		CreatorID:      c.Locals(localUserID).(uint),
		ParticipantIDs: req.ParticipantIDs,
		Name:           req.Name,
		Avatar:         req.Avatar,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// GetMessages handles GET /api/conversations/:id/messages?page&limit
func (s *Server) GetMessages(c *fiber.Ctx) error {
	convID, err := pathID(c, "conversation")
	if err != nil {
		return respondError(c, err)
	}
	page, err := s.chatService.GetMessagesForUser(c.UserContext(), convID, c.Locals(localUserID).(uint),
		c.QueryInt("page", 1), c.QueryInt("limit", service.DefaultMessagePageSize))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// SendMessage handles POST /api/conversations/:id/messages. Joined sockets
// get the same message:new a socket send produces.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	convID, err := pathID(c, "conversation")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Content     string              `json:"content"`
		Type        models.MessageType  `json:"type"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	userID := c.Locals(localUserID).(uint)
	msg, conv, err := s.chatService.SendMessage(c.UserContext(), service.SendMessageInput{
		UserID:         userID,
		ConversationID: convID,
		Content:        req.Content,
		Type:           req.Type,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return respondError(c, err)
	}

	ctx := s.baseContext()
	s.publishMessage(ctx, msg, conv)
	if s.connections.StopTyping(convID, userID) {
		s.publishTyping(ctx, notifications.EventTypingStop, convID, userID)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// MarkConversationRead handles POST /api/conversations/:id/read. An empty
// message_ids acknowledges everything unread.
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	convID, err := pathID(c, "conversation")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		MessageIDs []uint `json:"message_ids"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	receipt, err := s.chatService.MarkRead(c.UserContext(), c.Locals(localUserID).(uint), convID, req.MessageIDs)
	if err != nil {
		return respondError(c, err)
	}
	s.publishReadReceipt(s.baseContext(), receipt)
	return c.JSON(receipt)
}

// DeleteConversation handles DELETE /api/conversations/:id
func (s *Server) DeleteConversation(c *fiber.Ctx) error {
	convID, err := pathID(c, "conversation")
	if err != nil {
		return respondError(c, err)
	}
	if _, err := s.chatService.DeleteConversation(c.UserContext(), c.Locals(localUserID).(uint), convID); err != nil {
		return respondError(c, err)
	}
	s.publishConversationDeleted(s.baseContext(), convID)
	return c.SendStatus(fiber.StatusNoContent)
}

// GetOnlineUsers handles GET /api/chat/online
func (s *Server) GetOnlineUsers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user_ids": s.connections.OnlineUserIDs(c.UserContext())})
}
