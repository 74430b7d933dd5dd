package server

import (
	"time"

	"academy/internal/models"
	"academy/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListUsers handles GET /api/admin/users
func (s *Server) ListUsers(c *fiber.Ctx) error {
	w := listWindow(c, 50)
	users, err := s.userService.ListUsers(c.UserContext(), w.Limit, w.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// UpdateUserAccess handles PUT /api/admin/users/:id/access. Omitted fields
// are left unchanged.
func (s *Server) UpdateUserAccess(c *fiber.Ctx) error {
	id, err := pathID(c, "user")
	if err != nil {
		return respondError(c, err)
	}

	var req struct {
		AccessLevel         *models.AccessLevel        `json:"access_level"`
		Role                *models.Role               `json:"role"`
		SubscriptionStatus  *models.SubscriptionStatus `json:"subscription_status"`
		SubscriptionEndDate *time.Time                 `json:"subscription_end_date"`
		ClearEndDate        bool                       `json:"clear_end_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := s.userService.UpdateAccess(c.UserContext(), id, service.AccessInput{
		AccessLevel:         req.AccessLevel,
		Role:                req.Role,
		SubscriptionStatus:  req.SubscriptionStatus,
		SubscriptionEndDate: req.SubscriptionEndDate,
		ClearEndDate:        req.ClearEndDate,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetFeatureFlags handles GET /api/admin/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := c.Locals(localUserID).(uint)
	return c.JSON(fiber.Map{
		"flags":    s.featureFlags.Raw(),
		"resolved": s.featureFlags.Snapshot(userID),
	})
}
