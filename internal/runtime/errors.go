package runtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNotConfigured is returned when no deployment-runtime base URL is set
var ErrNotConfigured = errors.New("deployment runtime URL is not configured")

// ErrCircuitOpen is returned while the runtime is being skipped after repeated failures
var ErrCircuitOpen = errors.New("deployment runtime circuit is open")

// CallError describes a failed runtime call and whether retrying may help
type CallError struct {
	Endpoint   string
	StatusCode int // 0 for transport errors
	Message    string
	Retryable  bool
	Cause      error
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("runtime %s: [%d] %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("runtime %s: %s", e.Endpoint, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// classifyStatus turns a non-2xx runtime response into a CallError.
// 408, 429 and 5xx are retryable; every other status is permanent.
func classifyStatus(endpoint string, statusCode int, body string) *CallError {
	err := &CallError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    truncateString(strings.TrimSpace(body), 200),
	}
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500 && statusCode < 600:
		err.Retryable = true
	}
	return err
}

// classifyError turns a transport error into a CallError. Cancellation by
// the caller is never retried; timeouts and connection failures are.
func classifyError(endpoint string, err error) *CallError {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}

	result := &CallError{Endpoint: endpoint, Message: truncateString(err.Error(), 200), Cause: err}

	if errors.Is(err, context.Canceled) {
		return result
	}
	if errors.Is(err, context.DeadlineExceeded) {
		result.Message = "request timed out"
		result.Retryable = true
		return result
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		result.Message = "request timed out"
		result.Retryable = true
		return result
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "x509:"), strings.Contains(errStr, "tls:"):
		// certificate problems do not fix themselves
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "network is unreachable"),
		strings.Contains(errStr, "EOF"):
		result.Retryable = true
	}
	return result
}

// backoff computes retry delays with exponential growth and jitter
type backoff struct {
	initialDelay  time.Duration
	maxDelay      time.Duration
	multiplier    float64
	jitterPercent int
}

func newBackoff(initialDelay, maxDelay time.Duration) *backoff {
	return &backoff{
		initialDelay:  initialDelay,
		maxDelay:      maxDelay,
		multiplier:    2.0,
		jitterPercent: 20,
	}
}

// delay returns the wait before retry number attempt (0-indexed)
func (b *backoff) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if d > float64(b.maxDelay) {
		d = float64(b.maxDelay)
	}

	if b.jitterPercent > 0 {
		jitterRange := d * float64(b.jitterPercent) / 100.0
		d += (rand.Float64()*2 - 1) * jitterRange
	}
	if d < 0 {
		d = float64(b.initialDelay)
	}
	return time.Duration(d)
}

// breaker stops calling the runtime for a cooldown after consecutive
// retryable failures, so an outage fails fast instead of stacking timeouts.
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
	now       func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.openUntil)
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
		b.failures = 0
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
