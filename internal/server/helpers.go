package server

import (
	"errors"
	"log/slog"

	"academy/internal/middleware"
	"academy/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// window is a limit/offset slice of a listing.
type window struct {
	Limit  int
	Offset int
}

const maxWindow = 100

// listWindow reads ?limit and ?offset, falling back to def for a missing or
// non-positive limit.
func listWindow(c *fiber.Ctx, def int) window {
	w := window{Limit: c.QueryInt("limit", def), Offset: c.QueryInt("offset", 0)}
	w.Limit = min(max(w.Limit, 0), maxWindow)
	if w.Limit == 0 {
		w.Limit = def
	}
	w.Offset = max(w.Offset, 0)
	return w
}

// pathID reads the :id route param. what names the resource in the
// validation message, e.g. "conversation" yields "Invalid conversation ID".
func pathID(c *fiber.Ctx, what string) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("Invalid " + what + " ID")
	}
	return uint(id), nil
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeRateLimited:
		return fiber.StatusTooManyRequests
	case models.CodeInternal:
		return fiber.StatusInternalServerError
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

// respondError writes err with the status statusFor assigns. Errors outside
// the taxonomy are logged and reported as internal.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusNotFound && models.ErrorCode(err) == "" {
		err = models.NewNotFoundError("Resource", c.Params("id", c.Params("slug")))
	}
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
		if models.ErrorCode(err) == "" {
			err = models.NewInternalError(err)
		}
	}
	return models.RespondWithError(c, status, err)
}

func badRequest(c *fiber.Ctx, message string) error {
	return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(message))
}
