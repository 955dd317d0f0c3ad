package character

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\s*\\n?```")
	bareObject = regexp.MustCompile(`(?s)\{.*\}`)
)

const generateSystemPrompt = `You write character.json files for autonomous AI agents.
Return exactly one JSON object and nothing else. It must contain the keys
"name", "bio", "lore", "knowledge", "messageExamples", "postExamples", "topics",
"adjectives" and "style" (with "all", "chat" and "post" lists). "bio" must be a list of strings.`

const editSystemPrompt = `You edit character.json files for autonomous AI agents.
You receive the current character and an instruction for a single key.
Return exactly one JSON object containing only that key with its new value.`

// Generator drafts and edits character files through an OpenAI compatible
// chat completions endpoint.
type Generator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGenerator creates a character generator
func NewGenerator(baseURL, apiKey, model string, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Generator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate asks the model for a complete character matching prompt
func (g *Generator) Generate(ctx context.Context, prompt string) (map[string]interface{}, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperror.New(apperror.InvalidRequest, "prompt is required")
	}

	content, err := g.complete(ctx, generateSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var character map[string]interface{}
	if err := json.Unmarshal([]byte(ExtractJSON(content)), &character); err != nil {
		log.Printf("⚠️ [CHARACTER-GEN] Model returned invalid JSON (%d chars)", len(content))
		return nil, apperror.Wrap(apperror.GenerationFailed, err, "Generated invalid JSON")
	}
	if err := Validate(character); err != nil {
		return nil, apperror.Wrap(apperror.GenerationFailed, err, "Generated character is invalid")
	}

	log.Printf("📝 [CHARACTER-GEN] Generated character %v", character["name"])
	return character, nil
}

// Edit asks the model for a new value of updateKey. The returned value is the
// decoded JSON value when the model answers with JSON, otherwise its raw text.
func (g *Generator) Edit(ctx context.Context, character map[string]interface{}, updateKey, prompt string) (interface{}, error) {
	if strings.TrimSpace(updateKey) == "" {
		return nil, apperror.New(apperror.InvalidRequest, "update_key is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, apperror.New(apperror.InvalidRequest, "prompt is required")
	}

	current, err := json.MarshalIndent(character, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal character: %w", err)
	}

	userMessage := fmt.Sprintf("Current character:\n%s\n\nKey to update: %s\nInstruction: %s", current, updateKey, prompt)
	content, err := g.complete(ctx, editSystemPrompt, userMessage)
	if err != nil {
		return nil, err
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(ExtractJSON(content)), &parsed); err != nil {
		return strings.TrimSpace(content), nil
	}
	if obj, ok := parsed.(map[string]interface{}); ok {
		if value, ok := obj[updateKey]; ok {
			return value, nil
		}
	}
	return parsed, nil
}

func (g *Generator) complete(ctx context.Context, system, user string) (string, error) {
	requestBody := map[string]interface{}{
		"model": g.model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"stream":      false,
		"temperature": 0.7,
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := g.baseURL + "/chat/completions"
	log.Printf("📤 [CHARACTER-GEN] Sending request to %s with model %s", apiURL, g.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", apperror.Wrap(apperror.ExternalServiceError, err, "character generation request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperror.Wrap(apperror.ExternalServiceError, err, "failed to read generation response")
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [CHARACTER-GEN] API error (status %d)", resp.StatusCode)
		return "", apperror.New(apperror.ExternalServiceError, "generation API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", apperror.Wrap(apperror.ExternalServiceError, err, "failed to parse generation response")
	}
	if len(apiResponse.Choices) == 0 {
		return "", apperror.New(apperror.GenerationFailed, "no response from model")
	}

	content := apiResponse.Choices[0].Message.Content
	log.Printf("📥 [CHARACTER-GEN] Received response (%d chars)", len(content))
	return content, nil
}

// ExtractJSON pulls a JSON document out of a reply that may wrap it in
// markdown fences or surrounding prose.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
		return content
	}

	if matches := fencedJSON.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	if match := bareObject.FindString(content); match != "" {
		return match
	}

	return content
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
