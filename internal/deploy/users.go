package deploy

import (
	"context"
	"errors"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/models"
	"github.com/pyanoxyz/agent-generator/internal/registry"
)

// Register verifies the signature and records the signer as a user.
// Repeated registration refreshes lastVerifiedAt.
func (s *Service) Register(ctx context.Context, req SignedRequest) (*models.User, error) {
	address, err := s.verify(req)
	if err != nil {
		return nil, err
	}
	user, err := s.store.UpsertUser(ctx, address)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, err, "failed to register user")
	}
	return user, nil
}

// CheckRegistered reports whether address has registered
func (s *Service) CheckRegistered(ctx context.Context, address string) (bool, error) {
	address = s.verifier.Normalize(address)
	if address == "" {
		return false, apperror.New(apperror.InvalidRequest, "public_key is required")
	}
	_, err := s.store.FindUser(ctx, address)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, registry.ErrNotFound):
		return false, nil
	default:
		return false, apperror.Wrap(apperror.Internal, err, "failed to look up user")
	}
}
