package handlers

import (
	"context"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/deploy"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

const maxUploadSize = 20 * 1024 * 1024

// AgentService is the deployment and lifecycle surface used by AgentHandler
type AgentService interface {
	Deploy(ctx context.Context, in deploy.DeployInput) (*models.DeployResult, error)
	Start(ctx context.Context, in deploy.LifecycleInput) (*models.DeployResult, error)
	Stop(ctx context.Context, in deploy.LifecycleInput) error
	Remove(ctx context.Context, agentID string) error
	GetLogs(ctx context.Context, agentID string) ([]byte, error)
	ListAgents(ctx context.Context, address string) ([]models.AgentSummary, error)
}

// AgentHandler handles agent deployment and lifecycle requests
type AgentHandler struct {
	service AgentService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(service AgentService) *AgentHandler {
	return &AgentHandler{service: service}
}

// Deploy handles POST /api/v1/agent/deploy (multipart)
func (h *AgentHandler) Deploy(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "expected multipart/form-data body")
	}

	var body SignedBody
	body.Signature = formValue(form, "signature")
	body.Message = formValue(form, "message")
	body.PublicKey = formValue(form, "public_key")
	body.Address = formValue(form, "address")

	characterFiles := form.File["character"]
	if len(characterFiles) == 0 {
		return badRequest(c, "character file is required")
	}
	characterData, err := readFile(characterFiles[0])
	if err != nil {
		return respondError(c, err)
	}

	var uploads []deploy.Upload
	for _, fh := range form.File["knowledge_files"] {
		data, err := readFile(fh)
		if err != nil {
			return respondError(c, err)
		}
		uploads = append(uploads, deploy.Upload{Filename: fh.Filename, Data: data})
	}

	result, err := h.service.Deploy(c.UserContext(), deploy.DeployInput{
		SignedRequest:  body.toRequest(),
		Character:      characterData,
		KnowledgeFiles: uploads,
		TwitterJSON:    formValue(form, "client_twitter"),
		DiscordJSON:    formValue(form, "client_discord"),
		TelegramJSON:   formValue(form, "client_telegram"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Start handles POST /api/v1/agent/start
func (h *AgentHandler) Start(c *fiber.Ctx) error {
	var req AgentActionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.Start(c.UserContext(), deploy.LifecycleInput{
		SignedRequest: req.toRequest(),
		AgentID:       req.AgentID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Shutdown handles POST /api/v1/agent/shutdown
func (h *AgentHandler) Shutdown(c *fiber.Ctx) error {
	var req AgentActionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	err := h.service.Stop(c.UserContext(), deploy.LifecycleInput{
		SignedRequest: req.toRequest(),
		AgentID:       req.AgentID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"agent_id": req.AgentID,
		"status":   models.AgentStatusStopped,
	})
}

// Logs handles POST /api/v1/agent/logs. The runtime's body is passed through.
func (h *AgentHandler) Logs(c *fiber.Ctx) error {
	var req LogsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	body, err := h.service.GetLogs(c.UserContext(), req.AgentID)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// List handles GET /api/v1/agents/:address
func (h *AgentHandler) List(c *fiber.Ctx) error {
	agents, err := h.service.ListAgents(c.UserContext(), c.Params("address"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(agents)
}

// Remove handles DELETE /api/v1/admin/agents/:agent_id
func (h *AgentHandler) Remove(c *fiber.Ctx) error {
	agentID := c.Params("agent_id")
	if err := h.service.Remove(c.UserContext(), agentID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"agent_id": agentID, "removed": true})
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUploadSize {
		return nil, apperror.New(apperror.InvalidRequest, "File %s exceeds the %dMB limit", fh.Filename, maxUploadSize/(1024*1024))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperror.Wrap(apperror.InvalidRequest, err, "could not open uploaded file %s", fh.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperror.Wrap(apperror.InvalidRequest, err, "could not read uploaded file %s", fh.Filename)
	}
	return data, nil
}
