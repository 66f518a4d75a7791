package resilient

import (
	"fmt"
	"time"
)

// Config holds client configuration.
// Use DefaultConfig and functional options to customize.
type Config struct {
	// BaseURL is prefixed to relative call targets. Empty means every
	// target must be an absolute URL.
	BaseURL string

	// APIKey, when set, is sent as a bearer token by the default transport
	// and scrubbed from transport error messages.
	APIKey string

	// Timeouts
	RequestTimeout time.Duration // per attempt, default 30s
	ConnectTimeout time.Duration // default 10s

	// Retry settings
	MaxRetries    int           // default 3
	RetryBaseWait time.Duration // default 1s
	RetryMaxWait  time.Duration // default 30s

	// Circuit breaker
	BreakerThreshold    uint32        // consecutive failures before opening, default 5
	BreakerResetTimeout time.Duration // open-state duration before probing, default 60s
	BreakerMaxProbes    uint32        // requests allowed while probing, default 1

	// Outbound pacing, disabled when PacerRPS is 0. The rate limiter on the
	// serving side is the real backpressure mechanism; this only smooths the
	// client's own output.
	PacerRPS   float64
	PacerBurst int

	// Transport tuning for the default HTTP transport
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	KeepAlive       time.Duration
	MaxResponseSize int64
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:      30 * time.Second,
		ConnectTimeout:      10 * time.Second,
		MaxRetries:          3,
		RetryBaseWait:       time.Second,
		RetryMaxWait:        30 * time.Second,
		BreakerThreshold:    5,
		BreakerResetTimeout: 60 * time.Second,
		BreakerMaxProbes:    1,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		KeepAlive:           30 * time.Second,
		MaxResponseSize:     10 << 20, // 10MB
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if c.RetryBaseWait <= 0 {
		return fmt.Errorf("%w: retry base wait must be positive", ErrInvalidConfig)
	}
	if c.RetryMaxWait < c.RetryBaseWait {
		return fmt.Errorf("%w: retry max wait below base wait", ErrInvalidConfig)
	}
	if c.BreakerThreshold == 0 {
		return fmt.Errorf("%w: breaker threshold must be positive", ErrInvalidConfig)
	}
	if c.PacerRPS < 0 {
		return fmt.Errorf("%w: pacer rps cannot be negative", ErrInvalidConfig)
	}
	return nil
}
