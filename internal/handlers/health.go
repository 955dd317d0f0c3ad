package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is implemented by the agent registry
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	registry          Pinger
	runtimeConfigured bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(registry Pinger, runtimeConfigured bool) *HealthHandler {
	return &HealthHandler{registry: registry, runtimeConfigured: runtimeConfigured}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := "healthy"
	registry := "ok"
	code := fiber.StatusOK
	if err := h.registry.Ping(ctx); err != nil {
		status = "unhealthy"
		registry = err.Error()
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":             status,
		"registry":           registry,
		"runtime_configured": h.runtimeConfigured,
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}
