package deploy

import (
	"context"
	"errors"
	"time"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/knowledge"
	"github.com/pyanoxyz/agent-generator/internal/logging"
	"github.com/pyanoxyz/agent-generator/internal/metrics"
	"github.com/pyanoxyz/agent-generator/internal/models"
	"github.com/pyanoxyz/agent-generator/internal/registry"
)

const characterContentType = "application/json"

// Upload is one uploaded file
type Upload struct {
	Filename string
	Data     []byte
}

// DeployInput is a deployment request after transport decoding
type DeployInput struct {
	SignedRequest
	Character      []byte
	KnowledgeFiles []Upload
	TwitterJSON    string
	DiscordJSON    string
	TelegramJSON   string
}

// Deploy runs the deployment pipeline. Every validation step runs before the
// first upload; uploads are not rolled back when a later step fails.
func (s *Service) Deploy(ctx context.Context, in DeployInput) (result *models.DeployResult, err error) {
	started := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(apperror.KindOf(err))
		}
		metrics.RecordDeployment(outcome, time.Since(started).Seconds())
	}()

	// Identity
	owner, err := s.verify(in.SignedRequest)
	if err != nil {
		return nil, err
	}
	if err := s.requireRegistered(ctx, owner); err != nil {
		return nil, err
	}

	// Admission: running-agent cap
	if err := s.enforceRunningCap(ctx, owner); err != nil {
		return nil, err
	}

	// Character validation and fingerprint
	char, err := s.characters.Process(in.Character)
	if err != nil {
		return nil, err
	}

	// Dedup fast path; the registry unique key is the authoritative check
	existing, err := s.store.FindByOwnerAndHash(ctx, owner, char.Hash)
	switch {
	case err == nil:
		return nil, apperror.New(apperror.DuplicateDeployment, "Agent with this character is already deployed").
			WithDetail("agent_id", existing.AgentID)
	case !errors.Is(err, registry.ErrNotFound):
		return nil, apperror.Wrap(apperror.Internal, err, "failed to check for duplicate deployment")
	}

	if s.guard != nil {
		release, err := s.guard.Acquire(ctx, owner, char.Hash)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	clientConfig, err := s.clients.Parse(in.TwitterJSON, in.DiscordJSON, in.TelegramJSON)
	if err != nil {
		return nil, err
	}

	// Admission: balance
	if err := s.gate.CheckAdmission(ctx, owner); err != nil {
		return nil, err
	}

	agentID := s.newID()
	logger := logging.WithDeployment(agentID, owner)
	logger.Info("deployment admitted", "character_hash", char.Hash, "knowledge_files", len(in.KnowledgeFiles))

	// Normalize every knowledge file before anything is uploaded
	normalized := make([]*models.KnowledgeFile, 0, len(in.KnowledgeFiles))
	encoded := make([][]byte, 0, len(in.KnowledgeFiles))
	for _, upload := range in.KnowledgeFiles {
		kf, err := s.knowledge.Process(upload.Filename, upload.Data)
		if err != nil {
			return nil, err
		}
		data, err := knowledge.Encode(kf)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, err, "failed to encode knowledge file %s", upload.Filename)
		}
		normalized = append(normalized, kf)
		encoded = append(encoded, data)
	}

	// Artifacts
	characterURL, err := s.uploader.UploadCharacter(ctx, owner, agentID, char.Raw, characterContentType)
	if err != nil {
		return nil, err
	}

	refs := make([]models.KnowledgeFileRef, 0, len(normalized))
	for i, kf := range normalized {
		url, err := s.uploader.UploadKnowledge(ctx, owner, agentID, encoded[i], kf.Filename, kf.ContentType)
		if err != nil {
			return nil, err
		}
		refs = append(refs, models.KnowledgeFileRef{
			Filename:    kf.Filename,
			ContentType: kf.ContentType,
			StorageURL:  url,
		})
	}
	logging.WithStep(logger, "artifacts_uploaded").Info("artifacts stored", "character_url", characterURL)

	// Live client authentication
	if err := s.clients.Authenticate(ctx, clientConfig); err != nil {
		return nil, err
	}
	if clientConfig.IsEmpty() {
		clientConfig = nil
	}

	now := s.now()
	agent := &models.Agent{
		AgentID:              agentID,
		OwnerAddress:         owner,
		Character:            char.Content,
		CharacterContentHash: char.Hash,
		CharacterURL:         characterURL,
		KnowledgeFiles:       refs,
		Client:               clientConfig,
		Status:               models.AgentStatusRunning,
		Version:              models.SchemaVersion,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.UpsertOnDeploy(ctx, agent); err != nil {
		if errors.Is(err, registry.ErrDuplicate) {
			return nil, apperror.New(apperror.DuplicateDeployment, "Agent with this character is already deployed")
		}
		return nil, apperror.Wrap(apperror.Internal, err, "failed to register agent")
	}
	logging.WithStep(logger, "registered").Info("agent registered")

	// The record is kept when notification fails so that start can retry it
	if err := s.notify(ctx, agent); err != nil {
		if statusErr := s.store.SetStatus(ctx, agentID, models.AgentStatusStopped); statusErr != nil {
			logger.Error("failed to mark agent stopped after notification failure", "error", statusErr)
		}
		logger.Error("runtime notification failed", "error", err)
		return nil, err
	}
	logging.WithStep(logger, "runtime_notified").Info("agent deployed")

	return &models.DeployResult{
		AgentID:        agentID,
		Character:      characterURL,
		Signature:      in.Signature,
		Message:        in.Message,
		KnowledgeFiles: refs,
	}, nil
}
