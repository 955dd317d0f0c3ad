package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
)

// respondError renders err as {"error": kind, "detail": message, ...details}
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  apperror.Internal,
			"detail": "Internal server error",
		})
	}

	status := apperror.StatusCode(appErr.Kind)
	body := fiber.Map{}
	for k, v := range appErr.Details {
		body[k] = v
	}
	body["error"] = appErr.Kind
	body["detail"] = appErr.Message

	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		if appErr.Kind == apperror.Internal {
			body["detail"] = "Internal server error"
		}
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, format string, args ...interface{}) error {
	return respondError(c, apperror.New(apperror.InvalidRequest, format, args...))
}
