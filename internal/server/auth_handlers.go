package server

import (
	"strconv"
	"time"

	"academy/internal/cache"
	"academy/internal/middleware"
	"academy/internal/models"
	"academy/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type authResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *service.Profile `json:"user"`
}

// Register handles POST /api/auth/register
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Language string `json:"language"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Language: req.Language,
	})
	if err != nil {
		return respondError(c, err)
	}

	resp, err := s.issueSession(c, user.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	resp, err := s.issueSession(c, user.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) issueSession(c *fiber.Ctx, userID uint) (*authResponse, error) {
	token, claims, err := s.tokens.Issue(userID, time.Now())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	profile, err := s.userService.Profile(c.UserContext(), userID)
	if err != nil {
		return nil, err
	}
	return &authResponse{Token: token, ExpiresAt: claims.ExpiresAt, User: profile}, nil
}

// Me handles GET /api/auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	profile, err := s.userService.Profile(c.UserContext(), c.Locals(localUserID).(uint))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// Logout handles POST /api/auth/logout. The token id is blacklisted until
// the token would have expired anyway.
func (s *Server) Logout(c *fiber.Ctx) error {
	jti, _ := c.Locals(localTokenID).(string)
	exp, _ := c.Locals(localTokenExp).(time.Time)
	if jti == "" || s.redis == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	ttl := time.Until(exp)
	if ttl <= 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err := s.redis.Set(c.UserContext(), cache.RevokedTokenKey(jti), "1", ttl).Err(); err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IssueWSTicket handles POST /api/ws/ticket. Browsers cannot set headers on
// a websocket handshake, so the socket authenticates with this short-lived
// single-use ticket instead of the bearer token.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRedisUnavailable))
	}

	userID := c.Locals(localUserID).(uint)
	ticket := uuid.NewString()
	if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket), strconv.FormatUint(uint64(userID), 10), cache.WSTicketTTL).Err(); err != nil {
		middleware.Logger.ErrorContext(c.UserContext(), "failed to store ws ticket", "error", err)
		return respondError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}
