package signature

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// EVMVerifier recovers the signing address from an Ethereum personal_sign signature
type EVMVerifier struct{}

func (v *EVMVerifier) Scheme() string { return "evm" }

// Normalize checksums well-formed hex addresses and leaves anything else untouched
func (v *EVMVerifier) Normalize(address string) string {
	address = strings.TrimSpace(address)
	raw, err := decodeHex(address)
	if err != nil || len(raw) != 20 {
		return address
	}
	return ChecksumAddress(address)
}

// Verify recovers the address that signed message. When address is non-empty
// the recovered address must match it (case-insensitive).
func (v *EVMVerifier) Verify(address, message, signature string) (string, error) {
	sig, err := decodeHex(signature)
	if err != nil {
		return "", invalid("signature is not valid hex")
	}
	if len(sig) != 65 {
		return "", invalid("signature must be 65 bytes, got %d", len(sig))
	}

	recovered, err := RecoverAddress(message, sig)
	if err != nil {
		return "", invalid("could not recover address: %v", err)
	}

	if address != "" && !strings.EqualFold(address, recovered) {
		return "", invalid("signature does not match address %s", address)
	}
	return recovered, nil
}

// RecoverAddress returns the EIP-55 address that produced sig (R || S || V) over
// the personal-message hash of message.
func RecoverAddress(message string, sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("invalid signature length %d", len(sig))
	}

	recID := sig[64]
	if recID >= 27 {
		recID -= 27
	}
	if recID > 1 {
		return "", fmt.Errorf("invalid recovery id %d", sig[64])
	}

	// compact format expected by dcrd: [27+recid] || R || S
	compact := make([]byte, 65)
	compact[0] = 27 + recID
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, PersonalMessageHash(message))
	if err != nil {
		return "", err
	}
	return PublicKeyToAddress(pub), nil
}

// PersonalMessageHash is keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
func PersonalMessageHash(message string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return keccak256([]byte(prefix), []byte(message))
}

// PublicKeyToAddress derives the checksummed address of a secp256k1 public key
func PublicKeyToAddress(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	hash := keccak256(uncompressed[1:])
	return ChecksumAddress(hex.EncodeToString(hash[12:]))
}

// ChecksumAddress applies EIP-55 mixed-case encoding to a hex address
func ChecksumAddress(address string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X"))
	hash := hex.EncodeToString(keccak256([]byte(lower)))

	var b strings.Builder
	b.WriteString("0x")
	for i, c := range lower {
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			b.WriteRune(c - 32)
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	return hex.DecodeString(s)
}
