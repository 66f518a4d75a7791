package resilient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors - use with errors.Is()
var (
	ErrCircuitOpen      = errors.New("bulwark: circuit breaker open")
	ErrOffline          = errors.New("bulwark: connection offline")
	ErrMaxRetries       = errors.New("bulwark: max retries exceeded")
	ErrResponseTooLarge = errors.New("bulwark: response too large")
	ErrInvalidConfig    = errors.New("bulwark: invalid configuration")
)

// Kind classifies a failed call.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindTimeout   Kind = "timeout"
	KindServer    Kind = "server"
	KindClient    Kind = "client"
	KindRateLimit Kind = "rate_limit"
	KindAuth      Kind = "auth"
	KindUnknown   Kind = "unknown"
)

// Error is a classified call failure. Use errors.As() to extract details,
// errors.Is() to match sentinels.
type Error struct {
	Kind       Kind
	Message    string
	Status     int           // HTTP status, 0 when no response was received
	Retryable  bool
	RetryAfter time.Duration // wait hint, 0 when the upstream gave none
	Target     string
	cause      error // underlying sentinel or transport error for errors.Is()
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("bulwark: %s: %s (kind=%s, status=%d)", e.Target, e.Message, e.Kind, e.Status)
	}
	return fmt.Sprintf("bulwark: %s: %s (kind=%s)", e.Target, e.Message, e.Kind)
}

// Unwrap returns the underlying cause for errors.Is() support.
func (e *Error) Unwrap() error { return e.cause }

// IsRetryable reports whether repeating the call may succeed.
func (e *Error) IsRetryable() bool { return e.Retryable }

// upstreamBody is the subset of an error response body worth surfacing.
// Upstreams disagree on the field name, so several are accepted.
type upstreamBody struct {
	Message    string          `json:"message"`
	Error      json.RawMessage `json:"error"`
	RetryAfter float64         `json:"retry_after"`
}

// bodyMessage extracts a human-readable message from an error response body.
func bodyMessage(body []byte) string {
	var parsed upstreamBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	if len(parsed.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(parsed.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(parsed.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

// bodyRetryAfter extracts a retry hint in seconds from an error response body.
func bodyRetryAfter(body []byte) time.Duration {
	var parsed upstreamBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0
	}
	if parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}
	return 0
}
