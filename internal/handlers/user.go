package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/pyanoxyz/agent-generator/internal/deploy"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

// UserService is the registration surface used by UserHandler
type UserService interface {
	Register(ctx context.Context, req deploy.SignedRequest) (*models.User, error)
	CheckRegistered(ctx context.Context, address string) (bool, error)
}

// UserHandler handles registration requests
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Register handles POST /api/v1/register
func (h *UserHandler) Register(c *fiber.Ctx) error {
	var body SignedBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := h.service.Register(c.UserContext(), body.toRequest())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"address":  user.Address,
		"verified": true,
	})
}

// CheckRegistered handles POST /api/v1/check_registered
func (h *UserHandler) CheckRegistered(c *fiber.Ctx) error {
	var req CheckRegisteredRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	address := req.PublicKey
	if address == "" {
		address = req.Address
	}

	registered, err := h.service.CheckRegistered(c.UserContext(), address)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"registered": registered})
}
