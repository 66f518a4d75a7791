package resilient

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// defaultRetryAfter is used when a 429 reply carries no wait hint.
const defaultRetryAfter = 60 * time.Second

// Sleeper abstracts time-based waiting for testing.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper uses actual time.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// BreakerSettings configures the circuit breaker behavior.
type BreakerSettings struct {
	// Threshold is the number of consecutive terminal failures that opens
	// the breaker.
	Threshold uint32

	// ResetTimeout is how long the breaker stays open before the next call
	// is allowed through as a probe.
	ResetTimeout time.Duration

	// MaxProbes is the number of calls admitted while probing.
	MaxProbes uint32

	// ReadyToTrip overrides the consecutive-failure rule when set.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerSettings returns production-ready defaults.
func DefaultBreakerSettings() BreakerSettings {
	cfg := DefaultConfig()
	return BreakerSettings{
		Threshold:    cfg.BreakerThreshold,
		ResetTimeout: cfg.BreakerResetTimeout,
		MaxProbes:    cfg.BreakerMaxProbes,
	}
}

// Metrics is a read-only snapshot for status indicators.
type Metrics struct {
	ConsecutiveFailures uint32
	BreakerOpen         bool
	InFlight            int
	Connection          ConnectionStatus
}

// Client executes logical upstream calls with bounded latency, bounded
// retry, failure isolation, and duplicate suppression. All methods are safe
// for concurrent use.
type Client struct {
	config          Config
	logger          *slog.Logger
	transport       Transport
	httpClient      *http.Client
	breaker         *gobreaker.CircuitBreaker[*Response]
	breakerSettings BreakerSettings
	flight          singleFlight[*Response]
	health          *connHealth
	pacer           *rate.Limiter
	sleeper         Sleeper
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	return NewFromConfig(DefaultConfig(), opts...)
}

// NewFromConfig creates a Client from a Config.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		config: cfg,
		health: newConnHealth(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.transport == nil {
		if c.httpClient != nil {
			c.transport = NewHTTPTransportWithClient(c.httpClient, c.config)
		} else {
			c.transport = NewHTTPTransport(c.config)
		}
	}

	if c.sleeper == nil {
		c.sleeper = realSleeper{}
	}

	if c.pacer == nil && c.config.PacerRPS > 0 {
		burst := c.config.PacerBurst
		if burst <= 0 {
			burst = 1
		}
		c.pacer = rate.NewLimiter(rate.Limit(c.config.PacerRPS), burst)
	}

	if c.breakerSettings.Threshold == 0 && c.breakerSettings.ReadyToTrip == nil {
		c.breakerSettings = BreakerSettings{
			Threshold:    c.config.BreakerThreshold,
			ResetTimeout: c.config.BreakerResetTimeout,
			MaxProbes:    c.config.BreakerMaxProbes,
		}
	}
	if c.breakerSettings.MaxProbes == 0 {
		c.breakerSettings.MaxProbes = 1
	}

	threshold := c.breakerSettings.Threshold
	readyToTrip := c.breakerSettings.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:         "bulwark-client",
		MaxRequests:  c.breakerSettings.MaxProbes,
		Timeout:      c.breakerSettings.ResetTimeout,
		ReadyToTrip:  readyToTrip,
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return c, nil
}

// Close releases resources held by the client. In-flight calls complete
// normally or with context errors.
func (c *Client) Close() error {
	if t, ok := c.transport.(*HTTPTransport); ok {
		t.Close()
	}
	return nil
}

// Call executes one logical call: POST payload to target, decode the reply
// into out (out may be nil for calls without a useful reply body). Failures
// come back as a classified *Error.
//
// Concurrent Calls with identical (target, payload) share one physical
// request and observe the same outcome.
func (c *Client) Call(ctx context.Context, target string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bulwark: %s: failed to marshal request: %w", target, err)
	}

	resp, err := c.execute(ctx, resolveTarget(c.config.BaseURL, target), body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("bulwark: %s: failed to parse response: %w", target, err)
	}
	return nil
}

// CallResult is a generic version of Call for cleaner call sites.
//
// Usage:
//
//	reply, err := resilient.CallResult[ChatReply](c, ctx, "/v1/chat", req)
func CallResult[T any](c *Client, ctx context.Context, target string, payload any) (T, error) {
	var result T
	if err := c.Call(ctx, target, payload, &result); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// ConnectionStatus returns a snapshot of upstream connectivity.
// It never mutates state.
func (c *Client) ConnectionStatus() ConnectionStatus {
	return c.health.snapshot()
}

// Metrics returns a read-only snapshot of client state.
func (c *Client) Metrics() Metrics {
	counts := c.breaker.Counts()
	return Metrics{
		ConsecutiveFailures: counts.ConsecutiveFailures,
		BreakerOpen:         c.breaker.State() == gobreaker.StateOpen,
		InFlight:            c.flight.Len(),
		Connection:          c.health.snapshot(),
	}
}

// SetOnline feeds the external online/offline signal. While offline, calls
// fail fast with a retryable network error instead of attempting the wire.
func (c *Client) SetOnline(online bool) {
	c.health.setOnline(online, time.Now())
	c.logger.Info("connection state changed", "online", online)
}

// execute runs the full call pipeline for already-marshaled payload bytes.
func (c *Client) execute(ctx context.Context, target string, body []byte) (*Response, error) {
	// Open breaker fails fast before any other work, including dedup: a
	// rejected call must not become a passenger of an in-flight one.
	if c.breaker.State() == gobreaker.StateOpen {
		return nil, c.openError(target)
	}

	key := dedupKey(target, body)
	return c.flight.Do(ctx, key, func() (*Response, error) {
		resp, err := c.breaker.Execute(func() (*Response, error) {
			return c.attemptWithRetry(ctx, target, body)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, c.openError(target)
		}
		return resp, err
	})
}

func (c *Client) attemptWithRetry(ctx context.Context, target string, body []byte) (*Response, error) {
	if !c.health.isOnline() {
		return nil, &Error{
			Kind:      KindNetwork,
			Message:   "connection is offline",
			Retryable: true,
			Target:    target,
			cause:     ErrOffline,
		}
	}

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.attempt(ctx, target, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// Non-retryable classifications surface immediately (not wrapped
		// in ErrMaxRetries).
		if !isRetryable(err) {
			return nil, err
		}

		if attempt >= c.config.MaxRetries {
			break
		}

		wait := c.backoffDelay(attempt+1, err)
		c.logger.Debug("retrying call",
			"target", target,
			"attempt", attempt+1,
			"wait", wait,
		)
		if serr := c.sleeper.Sleep(ctx, wait); serr != nil {
			return nil, serr
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

// attempt issues one timed physical call and classifies its outcome.
func (c *Client) attempt(ctx context.Context, target string, body []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.transport.Send(attemptCtx, target, body)
	elapsed := time.Since(start)
	now := time.Now()

	if err != nil {
		c.health.recordTransportFailure(now)

		// The caller abandoned the call; surface the plain context error
		// so it is neither classified nor retried.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, ErrResponseTooLarge) {
			return nil, &Error{
				Kind:    KindUnknown,
				Message: "upstream response exceeded size limit",
				Target:  target,
				cause:   err,
			}
		}

		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &Error{
				Kind:      KindTimeout,
				Message:   "request timed out after " + c.config.RequestTimeout.String(),
				Retryable: true,
				Target:    target,
				cause:     err,
			}
		}

		return nil, &Error{
			Kind:      KindNetwork,
			Message:   "request failed: " + err.Error(),
			Retryable: true,
			Target:    target,
			cause:     err,
		}
	}

	// Any HTTP reply, whatever the status, proves connectivity.
	c.health.recordResponse(elapsed, now)

	if resp.Status >= 200 && resp.Status < 300 {
		return resp, nil
	}
	return nil, classifyStatus(target, resp)
}

// classifyStatus maps an upstream error status to a classified Error.
func classifyStatus(target string, resp *Response) *Error {
	msg := bodyMessage(resp.Body)

	switch {
	case resp.Status >= 500:
		if msg == "" {
			msg = "upstream server error"
		}
		return &Error{Kind: KindServer, Message: msg, Status: resp.Status, Retryable: true, Target: target}

	case resp.Status == http.StatusTooManyRequests:
		if msg == "" {
			msg = "upstream rate limit exceeded"
		}
		retryAfter := parseRetryAfter(resp)
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		return &Error{
			Kind:       KindRateLimit,
			Message:    msg,
			Status:     resp.Status,
			Retryable:  true,
			RetryAfter: retryAfter,
			Target:     target,
		}

	case resp.Status == http.StatusUnauthorized, resp.Status == http.StatusForbidden:
		if msg == "" {
			msg = "authentication failed"
		}
		return &Error{Kind: KindAuth, Message: msg, Status: resp.Status, Target: target}

	case resp.Status >= 400:
		if msg == "" {
			msg = http.StatusText(resp.Status)
		}
		return &Error{Kind: KindClient, Message: msg, Status: resp.Status, Target: target}

	default:
		if msg == "" {
			msg = "unexpected upstream status"
		}
		return &Error{Kind: KindUnknown, Message: msg, Status: resp.Status, Target: target}
	}
}

// parseRetryAfter extracts the wait hint from the JSON body (primary) or the
// Retry-After header (fallback).
func parseRetryAfter(resp *Response) time.Duration {
	if d := bodyRetryAfter(resp.Body); d > 0 {
		return d
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

func isRetryable(err error) bool {
	// Check the classification first: a per-attempt timeout wraps
	// context.DeadlineExceeded as its cause yet is retryable.
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Retryable
	}
	return false
}

// backoffDelay computes the wait before retry number attempt (1-based).
// A wait hint from the upstream takes precedence over computed backoff.
func (c *Client) backoffDelay(attempt int, err error) time.Duration {
	var cerr *Error
	if errors.As(err, &cerr) && cerr.RetryAfter > 0 {
		return cerr.RetryAfter
	}

	backoff := float64(c.config.RetryBaseWait) * math.Pow(2, float64(attempt-1))
	if backoff > float64(c.config.RetryMaxWait) {
		backoff = float64(c.config.RetryMaxWait)
	}

	// Additive jitter up to 10%
	jitterRange := int64(backoff * 0.1)
	if jitterRange > 0 {
		if n, rerr := rand.Int(rand.Reader, big.NewInt(jitterRange)); rerr == nil {
			backoff += float64(n.Int64())
		}
	}

	return time.Duration(backoff)
}

// isBreakerSuccess determines whether an outcome counts against the breaker.
// Every classified terminal failure counts. Context cancellation and the
// offline short-circuit do not: neither says anything about upstream health.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrOffline) {
		return true
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

func (c *Client) openError(target string) *Error {
	return &Error{
		Kind:    KindServer,
		Message: "circuit breaker open, failing fast",
		Target:  target,
		cause:   ErrCircuitOpen,
	}
}

func dedupKey(target string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
