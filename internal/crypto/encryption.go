package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Prefix marking values produced by Seal, so stored plaintext can be told apart
const sealedPrefix = "enc:v1:"

const keyDerivationInfo = "agent-client-credentials"

// EncryptionService encrypts agent client credentials at rest with a key
// derived per owner address from a single master key.
type EncryptionService struct {
	masterKey []byte
}

// NewEncryptionService creates the service from a 32-byte hex-encoded master key (64 characters)
func NewEncryptionService(masterKeyHex string) (*EncryptionService, error) {
	if masterKeyHex == "" {
		return nil, errors.New("encryption master key is required")
	}

	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key format (must be hex): %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (64 hex characters), got %d bytes", len(masterKey))
	}

	return &EncryptionService{masterKey: masterKey}, nil
}

// DeriveOwnerKey derives the AES-256 key for one owner with HKDF-SHA256
func (e *EncryptionService) DeriveOwnerKey(owner string) ([]byte, error) {
	if owner == "" {
		return nil, errors.New("owner address is required for key derivation")
	}

	reader := hkdf.New(sha256.New, e.masterKey, []byte(strings.ToLower(owner)), []byte(keyDerivationInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive owner key: %w", err)
	}
	return key, nil
}

func (e *EncryptionService) aead(owner string) (cipher.AEAD, error) {
	key, err := e.DeriveOwnerKey(owner)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM. The nonce is prepended and the
// result is base64 encoded behind a version prefix.
func (e *EncryptionService) Seal(owner string, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	gcm, err := e.aead(owner)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// The owner is bound as additional data so a value cannot be moved between owners
	sealed := gcm.Seal(nonce, nonce, plaintext, []byte(strings.ToLower(owner)))
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal
func (e *EncryptionService) Open(owner string, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if !IsSealed(value) {
		return nil, errors.New("value is not encrypted")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := e.aead(owner)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(strings.ToLower(owner)))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// SealJSON marshals v and encrypts it
func (e *EncryptionService) SealJSON(owner string, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return e.Seal(owner, data)
}

// OpenJSON decrypts value and unmarshals it into out
func (e *EncryptionService) OpenJSON(owner string, value string, out interface{}) error {
	data, err := e.Open(owner, value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// IsSealed reports whether value was produced by Seal
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// GenerateMasterKey generates a new random 32-byte master key (for setup)
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
