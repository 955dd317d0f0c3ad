package deploy

import (
	"context"
	"errors"
	"log"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/logging"
	"github.com/pyanoxyz/agent-generator/internal/metrics"
	"github.com/pyanoxyz/agent-generator/internal/models"
	"github.com/pyanoxyz/agent-generator/internal/registry"
	"github.com/pyanoxyz/agent-generator/internal/runtime"
)

// LifecycleInput identifies an agent and proves the caller's identity
type LifecycleInput struct {
	SignedRequest
	AgentID string
}

func (s *Service) findAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	if agentID == "" {
		return nil, apperror.New(apperror.InvalidRequest, "agent_id is required")
	}
	agent, err := s.store.FindByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, apperror.New(apperror.AgentNotFound, "Agent %s not found", agentID)
		}
		return nil, apperror.Wrap(apperror.Internal, err, "failed to load agent")
	}
	return agent, nil
}

// ownedAgent verifies the signature and that the signer owns the agent
func (s *Service) ownedAgent(ctx context.Context, in LifecycleInput) (*models.Agent, string, error) {
	caller, err := s.verify(in.SignedRequest)
	if err != nil {
		return nil, "", err
	}
	agent, err := s.findAgent(ctx, in.AgentID)
	if err != nil {
		return nil, "", err
	}
	if !s.sameOwner(agent.OwnerAddress, caller) {
		return nil, "", apperror.New(apperror.NotOwner, "Address %s does not own agent %s", caller, in.AgentID)
	}
	return agent, caller, nil
}

// Start re-notifies the runtime for a stopped agent and marks it running.
// Storage URLs are re-derived from the owner and agent id.
func (s *Service) Start(ctx context.Context, in LifecycleInput) (result *models.DeployResult, err error) {
	defer func() { recordLifecycle("start", err) }()

	agent, caller, err := s.ownedAgent(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckAdmission(ctx, caller); err != nil {
		return nil, err
	}
	if agent.Status == models.AgentStatusRunning {
		return nil, apperror.New(apperror.AlreadyRunning, "Agent %s is already running", agent.AgentID).
			WithDetail("agent_id", agent.AgentID)
	}
	if err := s.enforceRunningCap(ctx, agent.OwnerAddress); err != nil {
		return nil, err
	}

	urlsChanged := s.resolveURLs(agent)

	if err := s.notify(ctx, agent); err != nil {
		return nil, err
	}

	if urlsChanged {
		agent.Status = models.AgentStatusRunning
		agent.UpdatedAt = s.now()
		err = s.store.UpsertOnDeploy(ctx, agent)
	} else {
		err = s.store.SetStatus(ctx, agent.AgentID, models.AgentStatusRunning)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, err, "failed to update agent status")
	}

	logging.WithDeployment(agent.AgentID, agent.OwnerAddress).Info("agent started")

	return &models.DeployResult{
		AgentID:        agent.AgentID,
		Character:      agent.CharacterURL,
		Signature:      in.Signature,
		Message:        in.Message,
		KnowledgeFiles: agent.KnowledgeFiles,
	}, nil
}

// resolveURLs recomputes artifact URLs and reports whether any changed
func (s *Service) resolveURLs(agent *models.Agent) bool {
	changed := false

	characterURL := s.uploader.CharacterURL(agent.OwnerAddress, agent.AgentID)
	if characterURL != agent.CharacterURL {
		agent.CharacterURL = characterURL
		changed = true
	}
	for i := range agent.KnowledgeFiles {
		kf := &agent.KnowledgeFiles[i]
		url := s.uploader.KnowledgeURL(agent.OwnerAddress, agent.AgentID, kf.Filename)
		if url != kf.StorageURL {
			kf.StorageURL = url
			changed = true
		}
	}
	if agent.KnowledgeFiles == nil {
		agent.KnowledgeFiles = []models.KnowledgeFileRef{}
	}
	return changed
}

// Stop asks the runtime to stop the agent and marks it stopped. Stopping a
// stopped agent still calls the runtime and is not an error.
func (s *Service) Stop(ctx context.Context, in LifecycleInput) (err error) {
	defer func() { recordLifecycle("stop", err) }()

	agent, _, err := s.ownedAgent(ctx, in)
	if err != nil {
		return err
	}
	if err := s.stopRuntime(ctx, agent.AgentID); err != nil {
		return err
	}
	if err := s.store.SetStatus(ctx, agent.AgentID, models.AgentStatusStopped); err != nil {
		return apperror.Wrap(apperror.Internal, err, "failed to update agent status")
	}

	logging.WithDeployment(agent.AgentID, agent.OwnerAddress).Info("agent stopped")
	return nil
}

// Remove stops an agent and deletes its record. Administrative only.
func (s *Service) Remove(ctx context.Context, agentID string) (err error) {
	defer func() { recordLifecycle("remove", err) }()

	agent, err := s.findAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if err := s.stopRuntime(ctx, agent.AgentID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, agent.AgentID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return apperror.New(apperror.AgentNotFound, "Agent %s not found", agentID)
		}
		return apperror.Wrap(apperror.Internal, err, "failed to delete agent")
	}

	log.Printf("🗑️  [ADMIN] Removed agent %s owned by %s", agent.AgentID, logging.ShortAddress(agent.OwnerAddress))
	return nil
}

func (s *Service) stopRuntime(ctx context.Context, agentID string) error {
	err := s.runtime.Stop(ctx, agentID)
	if errors.Is(err, runtime.ErrNotConfigured) && !s.strictRuntime {
		log.Printf("⚠️  [RUNTIME] Runtime URL not configured, skipping stop for agent %s", agentID)
		return nil
	}
	if err != nil {
		return apperror.Wrap(apperror.ExternalServiceError, err, "failed to stop agent %s", agentID)
	}
	return nil
}

// GetLogs returns the runtime's raw log response for an agent
func (s *Service) GetLogs(ctx context.Context, agentID string) ([]byte, error) {
	if agentID == "" {
		return nil, apperror.New(apperror.InvalidRequest, "agent_id is required")
	}
	body, err := s.runtime.Logs(ctx, agentID)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalServiceError, err, "failed to fetch logs for agent %s", agentID)
	}
	return body, nil
}

// ListAgents returns the redacted view of every agent of a registered owner
func (s *Service) ListAgents(ctx context.Context, address string) ([]models.AgentSummary, error) {
	owner := s.verifier.Normalize(address)
	if owner == "" {
		return nil, apperror.New(apperror.InvalidRequest, "address is required")
	}
	if err := s.requireRegistered(ctx, owner); err != nil {
		return nil, err
	}

	agents, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, err, "failed to list agents")
	}

	summaries := make([]models.AgentSummary, 0, len(agents))
	for _, agent := range agents {
		summaries = append(summaries, agent.Summary())
	}
	return summaries, nil
}

func recordLifecycle(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(apperror.KindOf(err))
	}
	metrics.RecordLifecycle(action, outcome)
}
