// Package deploy runs the agent deployment pipeline and the lifecycle
// operations (start, stop, logs, listing, registration) on deployed agents.
package deploy

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/character"
	"github.com/pyanoxyz/agent-generator/internal/config"
	"github.com/pyanoxyz/agent-generator/internal/knowledge"
	"github.com/pyanoxyz/agent-generator/internal/models"
	"github.com/pyanoxyz/agent-generator/internal/registry"
	"github.com/pyanoxyz/agent-generator/internal/runtime"
	"github.com/pyanoxyz/agent-generator/internal/signature"
)

// Uploader stores agent artifacts and derives their public URLs
type Uploader interface {
	UploadCharacter(ctx context.Context, owner, agentID string, data []byte, contentType string) (string, error)
	UploadKnowledge(ctx context.Context, owner, agentID string, data []byte, filename, contentType string) (string, error)
	CharacterURL(owner, agentID string) string
	KnowledgeURL(owner, agentID, filename string) string
}

// AdmissionGate enforces the minimum-balance policy
type AdmissionGate interface {
	CheckAdmission(ctx context.Context, address string) error
}

// ClientValidator checks client credentials. Parse has no side effects;
// Authenticate may contact the platforms.
type ClientValidator interface {
	Parse(twitterJSON, discordJSON, telegramJSON string) (*models.ClientConfig, error)
	Authenticate(ctx context.Context, cfg *models.ClientConfig) error
}

// Runtime is the remote deployment runtime
type Runtime interface {
	Configured() bool
	Deploy(ctx context.Context, req runtime.DeployRequest) error
	Stop(ctx context.Context, agentID string) error
	Logs(ctx context.Context, agentID string) ([]byte, error)
}

// Dependencies are the collaborators of a Service
type Dependencies struct {
	Verifier  signature.Verifier
	Store     registry.Store
	Gate      AdmissionGate
	Clients   ClientValidator
	Uploader  Uploader
	Runtime   Runtime
	Guard     Guard // optional
}

// Service implements the deployment pipeline and lifecycle operations
type Service struct {
	verifier   signature.Verifier
	store      registry.Store
	gate       AdmissionGate
	characters *character.Processor
	knowledge  *knowledge.Processor
	clients    ClientValidator
	uploader   Uploader
	runtime    Runtime
	guard      Guard

	provider      config.ModelProviderConfig
	maxRunning    int
	production    bool
	strictRuntime bool

	now   func() time.Time
	newID func() string
}

// NewService wires the pipeline from its collaborators and the configuration snapshot
func NewService(deps Dependencies, cfg *config.Config) *Service {
	return &Service{
		verifier:      deps.Verifier,
		store:         deps.Store,
		gate:          deps.Gate,
		characters:    character.NewProcessor(),
		knowledge:     knowledge.NewProcessor(),
		clients:       deps.Clients,
		uploader:      deps.Uploader,
		runtime:       deps.Runtime,
		guard:         deps.Guard,
		provider:      cfg.ModelProvider,
		maxRunning:    cfg.MaxRunningAgents,
		production:    cfg.IsProduction(),
		strictRuntime: cfg.Runtime.Strict,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
	}
}

// SignedRequest carries the proof of identity sent with every mutating call.
// Identity is the address (evm, optional) or the public key (solana).
type SignedRequest struct {
	Signature string
	Message   string
	Identity  string
}

// verify resolves the caller identity from a signed request
func (s *Service) verify(req SignedRequest) (string, error) {
	if req.Signature == "" || req.Message == "" {
		return "", apperror.New(apperror.InvalidSignature, "signature and message are required")
	}
	return s.verifier.Verify(req.Identity, req.Message, req.Signature)
}

// requireRegistered fails with UserNotRegistered unless address has registered
func (s *Service) requireRegistered(ctx context.Context, address string) error {
	if _, err := s.store.FindUser(ctx, address); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return apperror.New(apperror.UserNotRegistered, "User %s is not registered", address)
		}
		return apperror.Wrap(apperror.Internal, err, "failed to look up user")
	}
	return nil
}

// enforceRunningCap applies the per-owner running-agent limit in production.
// Concurrent requests may overshoot the cap slightly.
func (s *Service) enforceRunningCap(ctx context.Context, owner string) error {
	if !s.production || s.maxRunning <= 0 {
		return nil
	}
	running, err := s.store.CountRunning(ctx, owner)
	if err != nil {
		return apperror.Wrap(apperror.Internal, err, "failed to count running agents")
	}
	if running >= s.maxRunning {
		return apperror.New(apperror.AgentLimitReached,
			"agent limit reached: %d of %d agents already running", running, s.maxRunning)
	}
	return nil
}

// notify sends the agent to the runtime. With a non-strict configuration an
// unset runtime URL is logged and skipped.
func (s *Service) notify(ctx context.Context, agent *models.Agent) error {
	if !s.runtime.Configured() {
		if s.strictRuntime {
			return apperror.New(apperror.DeploymentNotificationFailed, "deployment runtime is not configured").
				WithDetail("agent_id", agent.AgentID)
		}
		log.Printf("⚠️  [RUNTIME] Runtime URL not configured, skipping notification for agent %s", agent.AgentID)
		return nil
	}

	if err := s.runtime.Deploy(ctx, runtime.NewDeployRequest(agent, s.provider)); err != nil {
		return apperror.Wrap(apperror.DeploymentNotificationFailed, err, "failed to notify deployment runtime").
			WithDetail("agent_id", agent.AgentID)
	}
	return nil
}

// sameOwner compares two addresses in the verifier's canonical form
func (s *Service) sameOwner(a, b string) bool {
	return s.verifier.Normalize(a) == s.verifier.Normalize(b)
}
