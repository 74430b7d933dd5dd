package server

import (
	"strings"

	"academy/internal/repository"

	"github.com/gofiber/fiber/v2"
)

const defaultCatalogueLimit = 20

func contentFilter(c *fiber.Ctx) repository.ContentFilter {
	w := listWindow(c, defaultCatalogueLimit)
	return repository.ContentFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    w.Limit,
		Offset:   w.Offset,
	}
}

// ListProtocols handles GET /api/protocols
func (s *Server) ListProtocols(c *fiber.Ctx) error {
	protocols, err := s.contentService.ListProtocols(c.UserContext(), s.optionalUser(c), contentFilter(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(protocols)
}

// GetProtocol handles GET /api/protocols/:slug. A denied read is still a 200
// with the body cut to a preview.
func (s *Server) GetProtocol(c *fiber.Ctx) error {
	view, err := s.contentService.GetProtocol(c.UserContext(), s.optionalUser(c), c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// ListQuizzes handles GET /api/quizzes
func (s *Server) ListQuizzes(c *fiber.Ctx) error {
	quizzes, err := s.contentService.ListQuizzes(c.UserContext(), s.optionalUser(c), contentFilter(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quizzes)
}

// GetQuiz handles GET /api/quizzes/:id. Every call draws a fresh sample.
func (s *Server) GetQuiz(c *fiber.Ctx) error {
	id, err := pathID(c, "quiz")
	if err != nil {
		return respondError(c, err)
	}
	view, err := s.contentService.GetQuiz(c.UserContext(), s.optionalUser(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// SubmitQuiz handles POST /api/quizzes/:id/submit
func (s *Server) SubmitQuiz(c *fiber.Ctx) error {
	id, err := pathID(c, "quiz")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Answers map[uint]int `json:"answers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := s.currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	result, err := s.contentService.SubmitQuiz(c.UserContext(), user, id, req.Answers)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// ListResources handles GET /api/resources
func (s *Server) ListResources(c *fiber.Ctx) error {
	resources, err := s.contentService.ListResources(c.UserContext(), s.optionalUser(c), contentFilter(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resources)
}

// GetResource handles GET /api/resources/:slug
func (s *Server) GetResource(c *fiber.Ctx) error {
	view, err := s.contentService.GetResource(c.UserContext(), s.optionalUser(c), c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}
