package character

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"unicode/utf8"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
)

// File is a validated character upload
type File struct {
	Raw     []byte
	Hash    string
	Content map[string]interface{}
}

// Processor validates character uploads
type Processor struct{}

// NewProcessor creates a character processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Hash returns the hex MD5 fingerprint used for deduplication
func Hash(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// Process checks that raw is a UTF-8 JSON object with a list-typed "bio" field.
// Any other fields are passed through untouched.
func (p *Processor) Process(raw []byte) (*File, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperror.New(apperror.InvalidCharacterFile, "File content is empty")
	}
	if !utf8.Valid(raw) {
		return nil, apperror.New(apperror.InvalidCharacterFile, "Character file must be UTF-8 encoded JSON")
	}

	content, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	return &File{
		Raw:     raw,
		Hash:    Hash(raw),
		Content: content,
	}, nil
}

// Parse decodes and validates a character document without hashing it
func Parse(raw []byte) (map[string]interface{}, error) {
	var content map[string]interface{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, apperror.Wrap(apperror.InvalidCharacterFile, err, "Invalid JSON in character file")
	}
	if err := Validate(content); err != nil {
		return nil, err
	}
	return content, nil
}

// Validate enforces the required "bio" list
func Validate(content map[string]interface{}) error {
	if content == nil {
		return apperror.New(apperror.InvalidCharacterFile, "Character file must be a JSON object")
	}
	bio, ok := content["bio"]
	if !ok {
		return apperror.New(apperror.InvalidCharacterFile, "Missing 'bio' field in character file")
	}
	if _, ok := bio.([]interface{}); !ok {
		return apperror.New(apperror.InvalidCharacterFile, "'bio' field must be a list")
	}
	return nil
}
