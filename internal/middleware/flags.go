package middleware

import (
	"chitchat/internal/featureflags"
	"chitchat/internal/models"

	"github.com/gofiber/fiber/v2"
)

// RequireFlag hides a route behind a feature flag. It runs after auth so
// percentage rollouts are keyed by user.
func RequireFlag(flags *featureflags.Manager, name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !flags.Enabled(name, UserID(c)) {
			return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFound("Feature not available"))
		}
		return c.Next()
	}
}
