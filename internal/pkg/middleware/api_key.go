package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/formrelay/squarelink/internal/pkg/env"
)

// APIKeyMiddleware authenticates API requests against the key configured in
// API_KEY. The comparison runs over hashes so its timing does not depend on
// how many leading bytes match.
func APIKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := env.GetEnv("API_KEY", "")
		if expected == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    "api_key_not_configured",
					"message": "API access is not configured",
				},
			})
		}

		provided := c.Get("X-API-Key")
		if provided == "" {
			auth := c.Get(fiber.HeaderAuthorization)
			if strings.HasPrefix(auth, "Bearer ") {
				provided = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		expectedSum := sha256.Sum256([]byte(expected))
		providedSum := sha256.Sum256([]byte(provided))
		if subtle.ConstantTimeCompare(expectedSum[:], providedSum[:]) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    "unauthorized",
					"message": "invalid API key",
				},
			})
		}
		return c.Next()
	}
}
