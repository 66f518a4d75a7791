package resilient

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTransport injects a custom transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient runs the default transport over a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL sets the prefix for relative call targets (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.config.BaseURL = url
	}
}

// WithAPIKey sets the bearer token sent by the default transport.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.config.APIKey = key
	}
}

// WithRetries sets the maximum number of retries after the first attempt.
func WithRetries(max int) Option {
	return func(c *Client) {
		c.config.MaxRetries = max
	}
}

// WithRequestTimeout bounds each individual attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.RequestTimeout = d
	}
}

// WithSleeper sets a custom sleeper for retry timing (useful for testing).
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleeper = s
	}
}

// WithBreakerSettings configures the circuit breaker.
func WithBreakerSettings(settings BreakerSettings) Option {
	return func(c *Client) {
		c.breakerSettings = settings
	}
}

// WithPacing enables the optional outbound pacing limiter. Pacing smooths
// this client's own output; it is not admission control for the upstream.
func WithPacing(rps float64, burst int) Option {
	return func(c *Client) {
		c.config.PacerRPS = rps
		c.config.PacerBurst = burst
	}
}
