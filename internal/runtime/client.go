// Package runtime is the client for the remote deployment runtime that
// actually runs agents. This service only notifies it.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pyanoxyz/agent-generator/internal/config"
	"github.com/pyanoxyz/agent-generator/internal/metrics"
)

const maxLogsBody = 10 << 20

// Client calls the runtime's /deploy, /stop and /logs endpoints. Transient
// failures are retried with exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
	backoff    *backoff
	breaker    *breaker
}

// NewClient creates a runtime client. An empty base URL yields a client whose
// calls all return ErrNotConfigured.
func NewClient(cfg config.RuntimeConfig) *Client {
	attempts := cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		attempts: attempts,
		backoff:  newBackoff(500*time.Millisecond, 5*time.Second),
		breaker:  newBreaker(5, 30*time.Second),
	}
}

// Configured reports whether a runtime base URL is set
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Deploy asks the runtime to start the agent described by req
func (c *Client) Deploy(ctx context.Context, req DeployRequest) error {
	_, err := c.post(ctx, "/deploy", req)
	return err
}

// Stop asks the runtime to stop an agent
func (c *Client) Stop(ctx context.Context, agentID string) error {
	_, err := c.post(ctx, "/stop", idRequest{ID: agentID})
	return err
}

// Logs returns the runtime's raw log response for an agent
func (c *Client) Logs(ctx context.Context, agentID string) ([]byte, error) {
	return c.post(ctx, "/logs", idRequest{ID: agentID})
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if !c.breaker.allow() {
		metrics.RecordRuntimeCall(endpoint, "circuit_open")
		return nil, ErrCircuitOpen
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", endpoint, err)
	}

	var lastErr *CallError
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff.delay(attempt - 1)
			log.Printf("🔄 [RUNTIME] Retrying %s in %v (attempt %d/%d): %v", endpoint, delay, attempt+1, c.attempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, classifyError(endpoint, ctx.Err())
			case <-time.After(delay):
			}
		}

		respBody, callErr := c.do(ctx, endpoint, body)
		if callErr == nil {
			c.breaker.recordSuccess()
			metrics.RecordRuntimeCall(endpoint, "success")
			return respBody, nil
		}

		lastErr = callErr
		if !callErr.Retryable {
			break
		}
		c.breaker.recordFailure()
	}

	metrics.RecordRuntimeCall(endpoint, "error")
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint string, body []byte) ([]byte, *CallError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Endpoint: endpoint, Message: err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxLogsBody))
	if err != nil {
		return nil, classifyError(endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(endpoint, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
