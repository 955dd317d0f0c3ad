// Package registry persists deployed agents and verified users. Two backends
// are provided: MongoDB and SQL (MySQL or SQLite).
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pyanoxyz/agent-generator/internal/crypto"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

var (
	// ErrNotFound is returned when no record matches
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint,
	// in particular (owner address, character content hash)
	ErrDuplicate = errors.New("duplicate record")
)

// AgentStore is the agent registry
type AgentStore interface {
	FindByOwnerAndHash(ctx context.Context, owner, hash string) (*models.Agent, error)
	// UpsertOnDeploy creates or overwrites the agent identified by AgentID
	UpsertOnDeploy(ctx context.Context, agent *models.Agent) error
	ListByOwner(ctx context.Context, owner string) ([]*models.Agent, error)
	FindByID(ctx context.Context, agentID string) (*models.Agent, error)
	SetStatus(ctx context.Context, agentID string, status models.AgentStatus) error
	CountRunning(ctx context.Context, owner string) (int, error)
	Delete(ctx context.Context, agentID string) error
}

// UserStore records addresses that have passed signature verification
type UserStore interface {
	UpsertUser(ctx context.Context, address string) (*models.User, error)
	FindUser(ctx context.Context, address string) (*models.User, error)
}

// Store combines both registries behind one backend
type Store interface {
	AgentStore
	UserStore
	Ping(ctx context.Context) error
}

// credentialCodec serializes client credentials for storage, sealing them
// per owner when an encryption service is configured.
type credentialCodec struct {
	enc *crypto.EncryptionService
}

func (c credentialCodec) encode(owner string, cfg *models.ClientConfig) (string, error) {
	if cfg.IsEmpty() {
		return "", nil
	}
	if c.enc != nil {
		sealed, err := c.enc.SealJSON(owner, cfg)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt client config: %w", err)
		}
		return sealed, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal client config: %w", err)
	}
	return string(data), nil
}

func (c credentialCodec) decode(owner, value string) (*models.ClientConfig, error) {
	if value == "" {
		return nil, nil
	}

	var cfg models.ClientConfig
	if crypto.IsSealed(value) {
		if c.enc == nil {
			return nil, errors.New("client config is encrypted but no encryption key is configured")
		}
		if err := c.enc.OpenJSON(owner, value, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decrypt client config: %w", err)
		}
		return &cfg, nil
	}

	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode client config: %w", err)
	}
	return &cfg, nil
}
