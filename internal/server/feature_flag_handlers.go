package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags handles GET /api/features
// @Summary Feature flags
// @Description Flags as evaluated for the caller; anonymous callers see unbucketed values
// @Tags features
// @Produce json
// @Success 200 {object} object{flags=map[string]bool}
// @Router /features [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"flags": s.flags.Snapshot(viewer(c))})
}
