package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/deploy"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

type fakeAgentService struct {
	deployIn  deploy.DeployInput
	lifecycle deploy.LifecycleInput
	err       error
}

func (f *fakeAgentService) Deploy(_ context.Context, in deploy.DeployInput) (*models.DeployResult, error) {
	f.deployIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.DeployResult{
		AgentID:        "agent-1",
		Character:      "https://agents.s3.amazonaws.com/character.json",
		Signature:      in.Signature,
		Message:        in.Message,
		KnowledgeFiles: []models.KnowledgeFileRef{},
	}, nil
}

func (f *fakeAgentService) Start(_ context.Context, in deploy.LifecycleInput) (*models.DeployResult, error) {
	f.lifecycle = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.DeployResult{AgentID: in.AgentID, KnowledgeFiles: []models.KnowledgeFileRef{}}, nil
}

func (f *fakeAgentService) Stop(_ context.Context, in deploy.LifecycleInput) error {
	f.lifecycle = in
	return f.err
}

func (f *fakeAgentService) Remove(_ context.Context, agentID string) error {
	f.lifecycle.AgentID = agentID
	return f.err
}

func (f *fakeAgentService) GetLogs(_ context.Context, agentID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"logs":["` + agentID + `"]}`), nil
}

func (f *fakeAgentService) ListAgents(_ context.Context, address string) ([]models.AgentSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.AgentSummary{{AgentID: "agent-1", OwnerAddress: address, Clients: []string{}}}, nil
}

func newAgentApp(svc AgentService) *fiber.App {
	h := NewAgentHandler(svc)
	app := fiber.New()
	app.Post("/api/v1/agent/deploy", h.Deploy)
	app.Post("/api/v1/agent/start", h.Start)
	app.Post("/api/v1/agent/shutdown", h.Shutdown)
	app.Post("/api/v1/agent/logs", h.Logs)
	app.Get("/api/v1/agents/:address", h.List)
	app.Delete("/api/v1/admin/agents/:agent_id", h.Remove)
	return app
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	for field, names := range files {
		for _, name := range names {
			part, err := w.CreateFormFile(field, name)
			if err != nil {
				t.Fatalf("CreateFormFile failed: %v", err)
			}
			part.Write([]byte("content of " + name))
		}
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to decode %s: %v", data, err)
	}
	return out
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDeployHandler(t *testing.T) {
	svc := &fakeAgentService{}
	app := newAgentApp(svc)

	body, contentType := multipartBody(t,
		map[string]string{
			"signature":       "0xsig",
			"message":         "hello",
			"address":         "0xabc",
			"client_telegram": `{"telegram_bot_token":"1:a"}`,
		},
		map[string][]string{
			"character":       {"character.json"},
			"knowledge_files": {"a.txt", "b.pdf"},
		},
	)
	req := httptest.NewRequest("POST", "/api/v1/agent/deploy", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	out := decodeBody(t, resp)
	if out["agent_id"] != "agent-1" || out["signature"] != "0xsig" || out["message"] != "hello" {
		t.Errorf("Unexpected response: %v", out)
	}

	in := svc.deployIn
	if in.Identity != "0xabc" {
		t.Errorf("Expected identity from address field, got %q", in.Identity)
	}
	if string(in.Character) != "content of character.json" {
		t.Errorf("Unexpected character bytes: %q", in.Character)
	}
	if len(in.KnowledgeFiles) != 2 || in.KnowledgeFiles[0].Filename != "a.txt" || in.KnowledgeFiles[1].Filename != "b.pdf" {
		t.Errorf("Expected knowledge files in order, got %+v", in.KnowledgeFiles)
	}
	if in.TelegramJSON == "" || in.TwitterJSON != "" {
		t.Errorf("Unexpected client JSON: %+v", in)
	}
}

func TestDeployHandler_MissingCharacter(t *testing.T) {
	app := newAgentApp(&fakeAgentService{})

	body, contentType := multipartBody(t, map[string]string{"signature": "s", "message": "m"}, nil)
	req := httptest.NewRequest("POST", "/api/v1/agent/deploy", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["error"] != string(apperror.InvalidRequest) {
		t.Errorf("Expected InvalidRequest, got %v", out["error"])
	}
}

func TestErrorRendering(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantDetail string
	}{
		{
			name:       "duplicate carries agent id",
			err:        apperror.New(apperror.DuplicateDeployment, "already deployed").WithDetail("agent_id", "agent-7"),
			wantStatus: fiber.StatusConflict,
			wantKind:   "DuplicateDeployment",
			wantDetail: "already deployed",
		},
		{
			name:       "invalid signature",
			err:        apperror.New(apperror.InvalidSignature, "bad"),
			wantStatus: fiber.StatusUnauthorized,
			wantKind:   "InvalidSignature",
			wantDetail: "bad",
		},
		{
			name:       "plain error is internal",
			err:        errors.New("database exploded"),
			wantStatus: fiber.StatusInternalServerError,
			wantKind:   "Internal",
			wantDetail: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAgentApp(&fakeAgentService{err: tt.err})
			resp, err := app.Test(jsonRequest("POST", "/api/v1/agent/start", `{"agent_id":"agent-7","signature":"s","message":"m"}`))
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			out := decodeBody(t, resp)
			if out["error"] != tt.wantKind {
				t.Errorf("Expected %s, got %v", tt.wantKind, out["error"])
			}
			if out["detail"] != tt.wantDetail {
				t.Errorf("Expected detail %q, got %v", tt.wantDetail, out["detail"])
			}
			if tt.wantKind == "DuplicateDeployment" && out["agent_id"] != "agent-7" {
				t.Errorf("Expected agent_id in body, got %v", out)
			}
		})
	}
}

func TestLifecycleHandlers(t *testing.T) {
	svc := &fakeAgentService{}
	app := newAgentApp(svc)

	resp, err := app.Test(jsonRequest("POST", "/api/v1/agent/shutdown",
		`{"agent_id":"agent-1","signature":"s","message":"m","public_key":"pk"}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["status"] != "stopped" {
		t.Errorf("Expected stopped status, got %v", out)
	}
	if svc.lifecycle.AgentID != "agent-1" || svc.lifecycle.Identity != "pk" {
		t.Errorf("Unexpected lifecycle input: %+v", svc.lifecycle)
	}

	resp, err = app.Test(jsonRequest("POST", "/api/v1/agent/logs", `{"agent_id":"agent-1"}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != `{"logs":["agent-1"]}` {
		t.Errorf("Expected runtime body passed through, got %s", data)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/agents/0xabc", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	data, _ = io.ReadAll(resp.Body)
	var agents []models.AgentSummary
	if err := json.Unmarshal(data, &agents); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(agents) != 1 || agents[0].OwnerAddress != "0xabc" {
		t.Errorf("Unexpected agents: %+v", agents)
	}

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/v1/admin/agents/agent-1", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out := decodeBody(t, resp); out["removed"] != true {
		t.Errorf("Expected removed, got %v", out)
	}
}

type fakeUserService struct {
	registered map[string]bool
}

func (f *fakeUserService) Register(_ context.Context, req deploy.SignedRequest) (*models.User, error) {
	if req.Signature != "good" {
		return nil, apperror.New(apperror.InvalidSignature, "signature does not match")
	}
	f.registered[req.Identity] = true
	return &models.User{Address: req.Identity}, nil
}

func (f *fakeUserService) CheckRegistered(_ context.Context, address string) (bool, error) {
	return f.registered[address], nil
}

func TestUserHandlers(t *testing.T) {
	h := NewUserHandler(&fakeUserService{registered: map[string]bool{}})
	app := fiber.New()
	app.Post("/api/v1/register", h.Register)
	app.Post("/api/v1/check_registered", h.CheckRegistered)

	resp, _ := app.Test(jsonRequest("POST", "/api/v1/register", `{"signature":"bad","message":"m","public_key":"pk"}`))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(jsonRequest("POST", "/api/v1/register", `{"signature":"good","message":"m","public_key":"pk"}`))
	if out := decodeBody(t, resp); out["address"] != "pk" || out["verified"] != true {
		t.Errorf("Unexpected register response: %v", out)
	}

	resp, _ = app.Test(jsonRequest("POST", "/api/v1/check_registered", `{"public_key":"pk"}`))
	if out := decodeBody(t, resp); out["registered"] != true {
		t.Errorf("Expected registered, got %v", out)
	}
	resp, _ = app.Test(jsonRequest("POST", "/api/v1/check_registered", `{"public_key":"other"}`))
	if out := decodeBody(t, resp); out["registered"] != false {
		t.Errorf("Expected not registered, got %v", out)
	}
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, prompt string) (map[string]interface{}, error) {
	if prompt == "" {
		return nil, apperror.New(apperror.InvalidRequest, "prompt is required")
	}
	return map[string]interface{}{"name": "Gen", "bio": []interface{}{prompt}}, nil
}

func (fakeGenerator) Edit(_ context.Context, content map[string]interface{}, updateKey, prompt string) (interface{}, error) {
	return []interface{}{content["name"], prompt}, nil
}

func TestCharacterHandlers(t *testing.T) {
	h := NewCharacterHandler(fakeGenerator{})
	app := fiber.New()
	app.Post("/api/v1/character/generate", h.Generate)
	app.Post("/api/v1/character/edit", h.Edit)

	resp, _ := app.Test(jsonRequest("POST", "/api/v1/character/generate", `{"prompt":"a pirate"}`))
	out := decodeBody(t, resp)
	generated, ok := out["character_json"].(map[string]interface{})
	if !ok || generated["name"] != "Gen" {
		t.Errorf("Unexpected generate response: %v", out)
	}

	resp, _ = app.Test(jsonRequest("POST", "/api/v1/character/generate", `{}`))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for empty prompt, got %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("update_key", "lore")
	w.WriteField("prompt", "more lore")
	part, _ := w.CreateFormFile("character", "c.json")
	part.Write([]byte(`{"name":"Bob","bio":["x"]}`))
	w.Close()

	req := httptest.NewRequest("POST", "/api/v1/character/edit", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	out = decodeBody(t, resp)
	update, ok := out["update"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected update object, got %v", out)
	}
	lore, ok := update["lore"].([]interface{})
	if !ok || len(lore) != 2 || lore[0] != "Bob" {
		t.Errorf("Unexpected lore update: %v", update)
	}
}

func TestCharacterEdit_InvalidCharacter(t *testing.T) {
	h := NewCharacterHandler(fakeGenerator{})
	app := fiber.New()
	app.Post("/edit", h.Edit)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("update_key", "lore")
	part, _ := w.CreateFormFile("character", "c.json")
	part.Write([]byte(`{"name":"Bob"}`))
	w.Close()

	req := httptest.NewRequest("POST", "/edit", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["error"] != string(apperror.InvalidCharacterFile) {
		t.Errorf("Expected InvalidCharacterFile, got %v", out["error"])
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"healthy", nil, fiber.StatusOK, "healthy"},
		{"registry down", errors.New("connection refused"), fiber.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/health", NewHealthHandler(fakePinger{err: tt.err}, true).Handle)

			resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
			out := decodeBody(t, resp)
			if out["status"] != tt.want || out["runtime_configured"] != true {
				t.Errorf("Unexpected body: %v", out)
			}
		})
	}
}
