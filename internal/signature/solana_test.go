package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
)

func TestSolanaVerifier_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	v := &SolanaVerifier{}
	publicKey := base58.Encode(pub)
	message := "start agent 42"
	sig := base58.Encode(ed25519.Sign(priv, []byte(message)))

	got, err := v.Verify(publicKey, message, sig)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != publicKey {
		t.Errorf("Expected identity %s, got %s", publicKey, got)
	}
}

func TestSolanaVerifier_ReturnsNormalizedKey(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	v := &SolanaVerifier{}
	publicKey := base58.Encode(pub)
	message := "register"
	sig := base58.Encode(ed25519.Sign(priv, []byte(message)))

	got, err := v.Verify("  "+publicKey+"\n", message, sig)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != publicKey {
		t.Errorf("Expected trimmed identity %q, got %q", publicKey, got)
	}
	if got != v.Normalize(got) {
		t.Errorf("Expected identity to be in normalized form, got %q", got)
	}
}

func TestSolanaVerifier_Rejects(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	message := "hello"
	rawSig := ed25519.Sign(priv, []byte(message))

	tests := []struct {
		name      string
		publicKey string
		message   string
		signature string
	}{
		{"missing key", "", message, base58.Encode(rawSig)},
		{"bad key", "0OIl", message, base58.Encode(rawSig)},
		{"63 byte signature", base58.Encode(pub), message, base58.Encode(rawSig[:63])},
		{"65 byte signature", base58.Encode(pub), message, base58.Encode(append(append([]byte{}, rawSig...), 0))},
		{"other key", base58.Encode(otherPub), message, base58.Encode(rawSig)},
		{"other message", base58.Encode(pub), "goodbye", base58.Encode(rawSig)},
	}

	v := &SolanaVerifier{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.publicKey, tt.message, tt.signature)
			if !apperror.Is(err, apperror.InvalidSignature) {
				t.Errorf("Expected InvalidSignature, got %v", err)
			}
		})
	}
}
