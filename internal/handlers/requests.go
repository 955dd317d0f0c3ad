package handlers

import (
	"github.com/pyanoxyz/agent-generator/internal/deploy"
)

// SignedBody is the JSON proof of identity sent with mutating calls.
// EVM callers may send address; Solana callers send public_key.
type SignedBody struct {
	Signature string `json:"signature" form:"signature"`
	Message   string `json:"message" form:"message"`
	PublicKey string `json:"public_key" form:"public_key"`
	Address   string `json:"address" form:"address"`
}

func (b SignedBody) toRequest() deploy.SignedRequest {
	identity := b.PublicKey
	if identity == "" {
		identity = b.Address
	}
	return deploy.SignedRequest{
		Signature: b.Signature,
		Message:   b.Message,
		Identity:  identity,
	}
}

// AgentActionRequest is the body of start and shutdown
type AgentActionRequest struct {
	SignedBody
	AgentID string `json:"agent_id"`
}

// LogsRequest is the body of the logs call
type LogsRequest struct {
	AgentID string `json:"agent_id"`
}

// CheckRegisteredRequest is the body of check_registered
type CheckRegisteredRequest struct {
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// GenerateRequest is the body of character generation
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}
