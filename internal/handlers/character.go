package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/pyanoxyz/agent-generator/internal/character"
)

// CharacterGenerator drafts and edits characters with a language model
type CharacterGenerator interface {
	Generate(ctx context.Context, prompt string) (map[string]interface{}, error)
	Edit(ctx context.Context, content map[string]interface{}, updateKey, prompt string) (interface{}, error)
}

// CharacterHandler handles character generation requests
type CharacterHandler struct {
	generator  CharacterGenerator
	characters *character.Processor
}

// NewCharacterHandler creates a new character handler
func NewCharacterHandler(generator CharacterGenerator) *CharacterHandler {
	return &CharacterHandler{
		generator:  generator,
		characters: character.NewProcessor(),
	}
}

// Generate handles POST /api/v1/character/generate
func (h *CharacterHandler) Generate(c *fiber.Ctx) error {
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	generated, err := h.generator.Generate(c.UserContext(), req.Prompt)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"character_json": generated})
}

// Edit handles POST /api/v1/character/edit (multipart)
func (h *CharacterHandler) Edit(c *fiber.Ctx) error {
	fh, err := c.FormFile("character")
	if err != nil {
		return badRequest(c, "character file is required")
	}
	data, err := readFile(fh)
	if err != nil {
		return respondError(c, err)
	}

	file, err := h.characters.Process(data)
	if err != nil {
		return respondError(c, err)
	}

	updateKey := c.FormValue("update_key")
	value, err := h.generator.Edit(c.UserContext(), file.Content, updateKey, c.FormValue("prompt"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"update": fiber.Map{updateKey: value}})
}
