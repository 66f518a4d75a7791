package bulwark

import (
	"context"
	"log/slog"

	"github.com/bulwark-io/bulwark/ratelimit"
	"github.com/bulwark-io/bulwark/resilient"
)

// Guard pairs a rate limiter with a resilient client for the common
// gateway pattern: admit inbound work, then forward it upstream.
type Guard struct {
	limiter *ratelimit.Limiter
	client  *resilient.Client
	policy  ratelimit.Policy
	logger  *slog.Logger
	config  guardConfig
}

type guardConfig struct {
	upstreamURL   string
	apiKey        string
	maxRetries    int
	policy        ratelimit.Policy
	logger        *slog.Logger
	clientOptions []resilient.Option
	limiterOpts   []ratelimit.Option
}

// Option configures the Guard.
type Option func(*guardConfig)

// WithUpstream sets the upstream base URL.
func WithUpstream(url string) Option {
	return func(c *guardConfig) {
		c.upstreamURL = url
	}
}

// WithAPIKey sets the upstream bearer token.
func WithAPIKey(key string) Option {
	return func(c *guardConfig) {
		c.apiKey = key
	}
}

// WithPolicy sets the admission policy used by Admit.
func WithPolicy(p ratelimit.Policy) Option {
	return func(c *guardConfig) {
		c.policy = p
	}
}

// WithRetries sets max retry attempts for upstream calls.
func WithRetries(max int) Option {
	return func(c *guardConfig) {
		c.maxRetries = max
	}
}

// WithLogger sets a custom logger for both components.
func WithLogger(logger *slog.Logger) Option {
	return func(c *guardConfig) {
		c.logger = logger
	}
}

// WithClientOptions passes extra options to the resilient client.
func WithClientOptions(opts ...resilient.Option) Option {
	return func(c *guardConfig) {
		c.clientOptions = append(c.clientOptions, opts...)
	}
}

// WithLimiterOptions passes extra options to the rate limiter.
func WithLimiterOptions(opts ...ratelimit.Option) Option {
	return func(c *guardConfig) {
		c.limiterOpts = append(c.limiterOpts, opts...)
	}
}

// New creates a Guard.
func New(opts ...Option) (*Guard, error) {
	cfg := guardConfig{
		maxRetries: resilient.DefaultConfig().MaxRetries,
		policy:     ratelimit.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if err := cfg.policy.Validate(); err != nil {
		return nil, err
	}

	clientOpts := []resilient.Option{
		resilient.WithBaseURL(cfg.upstreamURL),
		resilient.WithAPIKey(cfg.apiKey),
		resilient.WithRetries(cfg.maxRetries),
		resilient.WithLogger(cfg.logger),
	}
	clientOpts = append(clientOpts, cfg.clientOptions...)

	client, err := resilient.New(clientOpts...)
	if err != nil {
		return nil, err
	}

	limiterOpts := append([]ratelimit.Option{ratelimit.WithLogger(cfg.logger)}, cfg.limiterOpts...)

	return &Guard{
		limiter: ratelimit.NewLimiter(limiterOpts...),
		client:  client,
		policy:  cfg.policy,
		logger:  cfg.logger,
		config:  cfg,
	}, nil
}

// Admit checks one inbound request against the configured policy.
func (g *Guard) Admit(identity, route string) ratelimit.Result {
	return g.limiter.Check(identity, route, g.policy)
}

// Call forwards one logical call upstream through the resilient client.
func (g *Guard) Call(ctx context.Context, target string, payload any, out any) error {
	return g.client.Call(ctx, target, payload, out)
}

// Client returns the underlying resilient client.
func (g *Guard) Client() *resilient.Client { return g.client }

// Limiter returns the underlying rate limiter.
func (g *Guard) Limiter() *ratelimit.Limiter { return g.limiter }

// SetOnline feeds the external online/offline signal through to the client.
func (g *Guard) SetOnline(online bool) {
	g.client.SetOnline(online)
}

// Metrics returns the client's read-only metrics snapshot.
func (g *Guard) Metrics() resilient.Metrics {
	return g.client.Metrics()
}

// Close releases resources held by both components.
func (g *Guard) Close() error {
	g.limiter.Close()
	return g.client.Close()
}
