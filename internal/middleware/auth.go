package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/pyanoxyz/agent-generator/pkg/auth"
)

// ServiceAuthMiddleware verifies service tokens on server-to-server routes.
// A nil authority rejects every request.
func ServiceAuthMiddleware(tokens *auth.ServiceTokenAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokens == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":  "Unauthorized",
				"detail": "Service authentication is not configured",
			})
		}

		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":  "Unauthorized",
				"detail": "Missing or invalid authorization token",
			})
		}

		caller, err := tokens.Verify(token)
		if err != nil {
			log.Printf("❌ [AUTH] Service token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":  "Unauthorized",
				"detail": "Invalid or expired token",
			})
		}

		c.Locals("caller_id", caller.ID)
		c.Locals("caller_role", caller.Role)
		return c.Next()
	}
}

// RequireRole allows only callers whose token carries role
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals("caller_role").(string); got != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":  "Forbidden",
				"detail": role + " access required",
			})
		}
		return c.Next()
	}
}
