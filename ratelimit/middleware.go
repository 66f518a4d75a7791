package ratelimit

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc extracts the caller identity from an inbound request.
type KeyFunc func(*http.Request) string

// RouteFunc extracts the logical route name from an inbound request.
type RouteFunc func(*http.Request) string

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	keyFunc   KeyFunc
	routeFunc RouteFunc
	logger    *slog.Logger
}

// WithMiddlewareLogger sets the logger used for rejection logging.
func WithMiddlewareLogger(logger *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = logger
	}
}

// WithKeyFunc overrides how the caller identity is derived.
// The default uses the request's remote IP.
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.keyFunc = fn
	}
}

// WithRouteFunc overrides how the route name is derived.
// The default uses the request's URL path.
func WithRouteFunc(fn RouteFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.routeFunc = fn
	}
}

// ClientIP returns the remote IP of the request, without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware wraps an http.Handler with admission control under policy.
// Every response carries X-RateLimit-* headers; rejections get a 429 with a
// Retry-After hint derived from the window reset time.
func Middleware(l *Limiter, policy Policy, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		keyFunc:   ClientIP,
		routeFunc: func(r *http.Request) string { return r.URL.Path },
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := l.Check(cfg.keyFunc(r), cfg.routeFunc(r), policy)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.PerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				cfg.logger.Warn("request rejected",
					"identity", cfg.keyFunc(r),
					"route", cfg.routeFunc(r),
					"reason", string(result.Reason))
				retryAfter := int(time.Until(result.ResetAt).Seconds() + 0.5)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":       "rate limit exceeded",
					"reason":      string(result.Reason),
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
