package ratelimit

import (
	"time"
)

// Reason explains why a request was rejected.
type Reason string

const (
	// ReasonBurst means the short burst window is exhausted.
	ReasonBurst Reason = "burst"

	// ReasonSustained means a sustained-rate window is exhausted.
	ReasonSustained Reason = "sustained"
)

// Policy is the immutable admission budget for one route.
// A tier with a non-positive limit is unlimited.
type Policy struct {
	// PerMinute is the sustained budget for the fixed 1-minute window.
	PerMinute int

	// PerHour is the sustained budget for the fixed 1-hour window.
	PerHour int

	// BurstLimit caps requests within one BurstWindow.
	BurstLimit int

	// BurstWindow is the span of the short burst window.
	BurstWindow time.Duration
}

// DefaultPolicy returns a moderate per-route budget.
func DefaultPolicy() Policy {
	return Policy{
		PerMinute:   30,
		PerHour:     600,
		BurstLimit:  5,
		BurstWindow: 10 * time.Second,
	}
}

// Validate checks the policy for internally inconsistent values.
func (p Policy) Validate() error {
	if p.BurstLimit > 0 && p.BurstWindow <= 0 {
		return NewPolicyError("burst_window", "must be positive when burst_limit is set")
	}
	if p.PerMinute > 0 && p.BurstLimit > p.PerMinute {
		return NewPolicyError("burst_limit", "cannot exceed per_minute budget")
	}
	if p.PerMinute > 0 && p.PerHour > 0 && p.PerMinute > p.PerHour {
		return NewPolicyError("per_minute", "cannot exceed per_hour budget")
	}
	return nil
}

// PolicyError reports an invalid policy field.
type PolicyError struct {
	Field   string
	Message string
}

func (e *PolicyError) Error() string {
	return "ratelimit: policy: " + e.Field + " - " + e.Message
}

// NewPolicyError creates a new PolicyError.
func NewPolicyError(field, message string) *PolicyError {
	return &PolicyError{Field: field, Message: message}
}

// Result is the outcome of one admission check. It carries the data needed
// to populate standard rate-limit response headers.
type Result struct {
	// Allowed indicates whether the request is permitted.
	Allowed bool

	// Remaining is the number of requests left in the per-minute window.
	Remaining int

	// ResetAt is when the window that produced this result rolls over.
	ResetAt time.Time

	// Reason is set on rejection only.
	Reason Reason
}
