package server

import (
	"log/slog"
	"net/url"
	"strconv"

	"chitchat/internal/middleware"
	"chitchat/internal/models"
	"chitchat/internal/observability"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize    = 20
	maxPaginationLimit = 100
)

// Pagination holds the parsed page/limit query parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// parsePagination reads ?page (1-based) and ?limit.
func parsePagination(c *fiber.Ctx) Pagination {
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	return Pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// respondError writes err with the status its code maps to. Server errors
// are logged; their cause is only echoed in development.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	status := models.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		observability.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithError(c, status, err, s.config.IsDevelopment())
}

// parsePostID reads the :postId route parameter.
func parsePostID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("postId"), 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("Invalid post ID")
	}
	return uint(id), nil
}

// badBody is returned when the request body cannot be decoded.
func badBody() error {
	return models.NewValidationError("Invalid request body")
}

// viewer returns the authenticated user's id, 0 for anonymous requests.
func viewer(c *fiber.Ctx) uint {
	return middleware.UserID(c)
}

// paramUnescaped returns a route parameter with percent-escapes decoded,
// falling back to the raw value when it is not valid escaping.
func paramUnescaped(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
