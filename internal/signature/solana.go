package signature

import (
	"crypto/ed25519"
	"strings"

	"github.com/mr-tron/base58"
)

// SolanaVerifier checks detached ed25519 signatures. The identity is asserted
// by the caller's public key, not derived.
type SolanaVerifier struct{}

func (v *SolanaVerifier) Scheme() string { return "solana" }

// Normalize trims whitespace; base58 keys are case-sensitive
func (v *SolanaVerifier) Normalize(address string) string {
	return strings.TrimSpace(address)
}

// Verify checks a base58 signature over message against a base58 public key
// and returns the public key on success.
func (v *SolanaVerifier) Verify(publicKey, message, signature string) (string, error) {
	publicKey = v.Normalize(publicKey)
	if publicKey == "" {
		return "", invalid("public key is required")
	}

	pub, err := base58.Decode(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", invalid("public key must be a base58 encoded 32 byte key")
	}

	sig, err := base58.Decode(signature)
	if err != nil {
		return "", invalid("signature is not valid base58")
	}
	if len(sig) != ed25519.SignatureSize {
		return "", invalid("signature must be exactly 64 bytes, got %d", len(sig))
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig) {
		return "", invalid("signature verification failed")
	}
	return publicKey, nil
}
