package server

import (
	"academy/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetAssistantQuota handles GET /api/assistant/quota
func (s *Server) GetAssistantQuota(c *fiber.Ctx) error {
	quota, err := s.assistantService.Quota(c.UserContext(), c.Locals(localUserID).(uint))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quota)
}

// AskAssistant handles POST /api/assistant/ask. An exhausted budget answers
// 429 with the quota so clients can show when it resets.
func (s *Server) AskAssistant(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	answer, err := s.assistantService.Ask(c.UserContext(), c.Locals(localUserID).(uint), req.Question)
	if err != nil {
		if models.ErrorCode(err) == models.CodeRateLimited && answer != nil {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":     err.Error(),
				"code":      models.CodeRateLimited,
				"remaining": answer.Quota.Remaining,
				"limit":     answer.Quota.Limit,
				"resets_at": answer.Quota.ResetsAt,
			})
		}
		return respondError(c, err)
	}
	return c.JSON(answer)
}
