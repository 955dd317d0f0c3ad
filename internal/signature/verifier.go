// Package signature verifies wallet signatures and resolves the caller's
// identity. Two schemes are supported: recoverable secp256k1 signatures over
// Ethereum personal messages, and detached ed25519 signatures with base58
// public keys.
package signature

import (
	"fmt"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
)

// Verifier checks a signature over message and returns the signer identity.
// identity is an address (evm, optional) or a public key (solana, required).
type Verifier interface {
	Verify(identity, message, signature string) (string, error)
	// Normalize returns the canonical form of an address, as Verify returns it
	Normalize(address string) string
	Scheme() string
}

// New returns the verifier for the given scheme name
func New(scheme string) (Verifier, error) {
	switch scheme {
	case "evm", "":
		return &EVMVerifier{}, nil
	case "solana":
		return &SolanaVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown signature scheme: %s", scheme)
	}
}

func invalid(format string, args ...interface{}) error {
	return apperror.New(apperror.InvalidSignature, format, args...)
}
