// Package transport is the Retrying Transport (C2): an http.RoundTripper
// that wraps every outbound LLM call so 429s and transient upstream
// errors are retried intelligently, emitting a progress event before
// each wait (spec.md §4.2).
//
// Grounded on original_source/src/utils/pydantic_retry_transport.py's
// AsyncTenacityTransport wrapping (Retry-After-aware wait, exponential
// fallback, 429/5xx/connect/timeout retry set) translated into an
// http.RoundTripper the way the teacher's pkg/mcp/recovery.go classifies
// errors for its own retry decision, plus a pre-request token bucket
// from itsneelabh-gomind/ui/security/rate_limiter.go's
// RateLimitTransport wrapping shape.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/metrics"
	"golang.org/x/time/rate"
)

// ProgressEvent is emitted before each retry wait (spec.md §4.2 step 3).
type ProgressEvent struct {
	Attempt     int
	WaitSeconds float64
	Reason      string
	AgentLabel  string
}

// ProgressCallback is invoked synchronously before each sleep.
type ProgressCallback func(ProgressEvent)

// Config configures a RetryingTransport.
type Config struct {
	MaxAttempts     int
	BaseWait        time.Duration
	MaxWait         time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
	AgentLabel      string
}

// RetryingTransport implements http.RoundTripper. Construct one per LLM
// provider client; reuse it across calls so the token bucket is shared.
type RetryingTransport struct {
	underlying http.RoundTripper
	cfg        Config
	limiter    *rate.Limiter
	onProgress ProgressCallback
}

// New wraps underlying (nil means http.DefaultTransport) with retry and
// rate-limit behavior.
func New(underlying http.RoundTripper, cfg Config, onProgress ProgressCallback) *RetryingTransport {
	if underlying == nil {
		underlying = http.DefaultTransport
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), burst)
	}
	return &RetryingTransport{underlying: underlying, cfg: cfg, limiter: limiter, onProgress: onProgress}
}

// RoundTrip implements http.RoundTripper with up to cfg.MaxAttempts tries.
func (t *RetryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastResp *http.Response

	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		if err := req.Context().Err(); err != nil {
			return nil, err // spec.md §5: check cancellation between retries
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
		}

		attemptReq, err := rewoundRequest(req)
		if err != nil {
			return nil, err
		}

		resp, err := t.underlying.RoundTrip(attemptReq)
		if err == nil && !isRetriableStatus(resp.StatusCode) {
			return resp, nil
		}

		reason := ""
		switch {
		case err != nil && !isRetriableError(err):
			return nil, err // not retriable at all — re-raise immediately
		case err != nil:
			reason = err.Error()
			lastErr = err
		default:
			reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
			lastErr = fmt.Errorf("retriable response: %s", reason)
			lastResp = resp
		}

		if attempt == t.cfg.MaxAttempts {
			break
		}

		metrics.RetriesTotal.WithLabelValues(retryReasonLabel(resp, err)).Inc()

		wait := t.waitDuration(resp, attempt)
		if t.onProgress != nil {
			t.onProgress(ProgressEvent{Attempt: attempt, WaitSeconds: wait.Seconds(), Reason: reason, AgentLabel: t.cfg.AgentLabel})
		}
		slog.Warn("retrying LLM transport call", "attempt", attempt, "wait_seconds", wait.Seconds(), "reason", reason, "agent_label", t.cfg.AgentLabel)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// retryReasonLabel buckets a retry trigger into a small, stable
// cardinality label for metrics.RetriesTotal.
func retryReasonLabel(resp *http.Response, err error) string {
	if err != nil {
		return "connection_error"
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	return "server_error"
}

// waitDuration computes how long to sleep before the next attempt:
// Retry-After if present (clamped to MaxWait), else exponential backoff
// from BaseWait (spec.md §4.2 steps 1-2).
func (t *RetryingTransport) waitDuration(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return clamp(d, t.cfg.MaxWait)
		}
	}
	backoff := t.cfg.BaseWait * time.Duration(1<<uint(attempt-1))
	return clamp(backoff, t.cfg.MaxWait)
}

func clamp(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

func isRetriableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isRetriableError mirrors the teacher's pkg/mcp/recovery.go:ClassifyError
// connection-vs-timeout split: connection failures are retried, but a
// context cancellation or an outright timeout is not.
func isRetriableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	return false
}

// rewoundRequest clones req with a fresh, re-readable body for this
// attempt — req.Body can only be consumed once, so every retry needs a
// request built from req.GetBody (set by http.NewRequestWithContext for
// any non-nil body).
func rewoundRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body for retry: %w", err)
	}
	clone.Body = body
	return clone, nil
}
