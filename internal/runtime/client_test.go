package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pyanoxyz/agent-generator/internal/config"
)

func newTestClient(baseURL string, retries int) *Client {
	c := NewClient(config.RuntimeConfig{BaseURL: baseURL, Timeout: 2 * time.Second, Retries: retries})
	c.backoff = newBackoff(time.Millisecond, 5*time.Millisecond)
	return c
}

func TestDeploySendsPayload(t *testing.T) {
	var got DeployRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deploy" {
			t.Errorf("Expected /deploy, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	req := DeployRequest{
		ID:        "agent-1",
		Character: "s3://bucket/owner/agent-1/character.json",
		Knowledge: map[string]string{"notes.json": "s3://bucket/owner/agent-1/knowledge/notes.json"},
		Env:       map[string]string{"TELEGRAM_BOT_TOKEN": "t"},
	}
	if err := client.Deploy(context.Background(), req); err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	if got.ID != "agent-1" || got.Character != req.Character {
		t.Errorf("Unexpected payload %+v", got)
	}
	if got.Knowledge["notes.json"] != req.Knowledge["notes.json"] {
		t.Errorf("Expected knowledge map, got %v", got.Knowledge)
	}
	if got.Env["TELEGRAM_BOT_TOKEN"] != "t" {
		t.Errorf("Expected env, got %v", got.Env)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	if err := client.Stop(context.Background(), "agent-1"); err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoesNotRetryPermanentFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"bad character url"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	err := client.Deploy(context.Background(), DeployRequest{ID: "agent-1"})

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("Expected CallError, got %v", err)
	}
	if callErr.StatusCode != http.StatusBadRequest || callErr.Retryable {
		t.Errorf("Unexpected error %+v", callErr)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestGivesUpAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	if err := client.Deploy(context.Background(), DeployRequest{ID: "agent-1"}); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestLogsReturnsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req idRequest
		json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/logs" || req.ID != "agent-1" {
			t.Errorf("Unexpected request %s %+v", r.URL.Path, req)
		}
		w.Write([]byte(`{"logs":["line 1","line 2"]}`))
	}))
	defer server.Close()

	body, err := newTestClient(server.URL, 1).Logs(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if string(body) != `{"logs":["line 1","line 2"]}` {
		t.Errorf("Unexpected body %s", body)
	}
}

func TestNotConfigured(t *testing.T) {
	client := NewClient(config.RuntimeConfig{})
	if client.Configured() {
		t.Error("Expected client without URL to be unconfigured")
	}
	if err := client.Deploy(context.Background(), DeployRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	client.breaker = newBreaker(2, time.Minute)

	client.Stop(context.Background(), "a")
	client.Stop(context.Background(), "a")
	if err := client.Stop(context.Background(), "a"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected the open circuit to skip the call, got %d calls", calls)
	}
}

func TestBreakerCloses(t *testing.T) {
	now := time.Unix(0, 0)
	b := newBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.recordFailure()
	if b.allow() {
		t.Fatal("Expected breaker to be open")
	}
	now = now.Add(2 * time.Minute)
	if !b.allow() {
		t.Fatal("Expected breaker to allow after cooldown")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"tls", errors.New("tls: failed to verify certificate: x509: unknown authority"), false},
		{"other", errors.New("something odd"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError("/deploy", tt.err).Retryable; got != tt.retryable {
				t.Errorf("Expected retryable=%v, got %v", tt.retryable, got)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	for status, retryable := range map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusRequestTimeout:      true,
		http.StatusInternalServerError: true,
		http.StatusServiceUnavailable:  true,
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusNotFound:            false,
	} {
		if got := classifyStatus("/stop", status, "").Retryable; got != retryable {
			t.Errorf("Status %d: expected retryable=%v, got %v", status, retryable, got)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Second)
	b.jitterPercent = 0

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for attempt, w := range want {
		if got := b.delay(attempt); got != w {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}
