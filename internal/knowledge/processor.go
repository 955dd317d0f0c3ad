package knowledge

import (
	"encoding/json"
	"log"
	"mime"
	"path/filepath"
	"strings"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

const (
	// DefaultContentType is used when the extension gives no MIME type
	DefaultContentType = "application/octet-stream"

	// OutputContentType is the content type of every normalized knowledge file
	OutputContentType = "application/json"
)

// Processor normalizes knowledge uploads into {"documents": [...]} JSON
type Processor struct{}

// NewProcessor creates a knowledge processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Process converts one uploaded file. PDFs become one document per extracted
// text block; everything else becomes a single document holding its text.
func (p *Processor) Process(filename string, data []byte) (*models.KnowledgeFile, error) {
	if len(data) == 0 {
		return nil, apperror.New(apperror.EmptyFile, "File content is empty: %s", filename)
	}

	var documents []string
	switch DetectContentType(filename) {
	case "application/pdf":
		blocks, err := ExtractPDFBlocks(data)
		if err != nil {
			return nil, apperror.Wrap(apperror.InvalidRequest, err, "could not read PDF %s", filename)
		}
		documents = blocks
		log.Printf("📄 [KNOWLEDGE] Extracted %d blocks from %s", len(blocks), filename)
	default:
		documents = []string{strings.ToValidUTF8(string(data), "")}
	}

	if documents == nil {
		documents = []string{}
	}

	return &models.KnowledgeFile{
		Filename:    OutputFilename(filename),
		ContentType: OutputContentType,
		Content:     models.KnowledgeContent{Documents: documents},
	}, nil
}

// Encode returns the bytes stored for a normalized knowledge file
func Encode(file *models.KnowledgeFile) ([]byte, error) {
	return json.Marshal(file.Content)
}

// DetectContentType guesses the MIME type (without parameters) from the file extension
func DetectContentType(filename string) string {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		return DefaultContentType
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return contentType
}

// OutputFilename replaces the extension of filename with .json
func OutputFilename(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return stem + ".json"
}
