package server

import (
	"context"
	"errors"
	"strconv"

	"academy/internal/cache"
	"academy/internal/middleware"
	"academy/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
)

// chatTierDenied is the reason given to users below the chat tier.
const chatTierDenied = "chat requires Basic or Premium"

// Locals keys set by the auth middleware.
const (
	localUserID   = "userID"
	localUser     = "user"
	localTokenID  = "tokenID"
	localTokenExp = "tokenExpiresAt"
)

var (
	errInvalidTicket    = errors.New("invalid or expired websocket ticket")
	errRedisUnavailable = errors.New("redis unavailable")
)

// AuthRequired returns the authentication middleware. WebSocket upgrades
// authenticate with a single-use ticket; everything else with a bearer token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), s.config.ChatAuthTimeout())
		defer cancel()

		if ticket := c.Query("ticket"); ticket != "" {
			userID, err := s.consumeWSTicket(ctx, ticket)
			if err == nil {
				s.setUserID(c, userID)
				return c.Next()
			}
			if websocket.IsWebSocketUpgrade(c) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		tokenString, ok := middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := s.tokens.Parse(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}
		if s.isRevoked(ctx, claims.TokenID) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		c.Locals(localTokenID, claims.TokenID)
		c.Locals(localTokenExp, claims.ExpiresAt)
		s.setUserID(c, claims.UserID)
		return c.Next()
	}
}

func (s *Server) setUserID(c *fiber.Ctx, userID uint) {
	c.Locals(localUserID, userID)
	c.SetUserContext(context.WithValue(c.UserContext(), middleware.UserIDKey, userID))
}

// consumeWSTicket redeems a ticket exactly once.
func (s *Server) consumeWSTicket(ctx context.Context, ticket string) (uint, error) {
	if s.redis == nil {
		return 0, errInvalidTicket
	}
	raw, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.Logger.WarnContext(ctx, "ws ticket lookup failed", "error", err)
		}
		return 0, errInvalidTicket
	}
	userID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || userID == 0 {
		return 0, errInvalidTicket
	}
	return uint(userID), nil
}

func (s *Server) isRevoked(ctx context.Context, jti string) bool {
	if jti == "" || s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, cache.RevokedTokenKey(jti)).Result()
	return err == nil && n > 0
}

// currentUser loads the authenticated user once per request.
func (s *Server) currentUser(c *fiber.Ctx) (*models.User, error) {
	if u, ok := c.Locals(localUser).(*models.User); ok {
		return u, nil
	}
	userID, ok := c.Locals(localUserID).(uint)
	if !ok {
		return nil, models.NewUnauthorizedError("Authorization required")
	}
	user, err := s.userRepo.GetByID(c.UserContext(), userID)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, models.NewUnauthorizedError("Account no longer exists")
		}
		return nil, err
	}
	c.Locals(localUser, user)
	return user, nil
}

// optionalUser resolves a bearer token when one is present. Missing, invalid
// and revoked tokens and deleted accounts all read as anonymous.
func (s *Server) optionalUser(c *fiber.Ctx) *models.User {
	tokenString, ok := middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return nil
	}
	claims, err := s.tokens.Parse(tokenString)
	if err != nil || s.isRevoked(c.UserContext(), claims.TokenID) {
		return nil
	}
	user, err := s.userRepo.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		return nil
	}
	s.setUserID(c, user.ID)
	c.Locals(localUser, user)
	return user
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.currentUser(c)
		if err != nil {
			return respondError(c, err)
		}
		if user.Role != models.RoleAdmin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// ChatTierRequired rejects users below the chat tier. On the websocket route
// it runs before the upgrade, so a denied client never gets a socket.
func (s *Server) ChatTierRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.currentUser(c)
		if err != nil {
			return respondError(c, err)
		}
		if !s.chatService.CanUseChat(user) {
			return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError(chatTierDenied))
		}
		return c.Next()
	}
}

// wsUpgradeRequired rejects plain HTTP requests to websocket routes.
func wsUpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
