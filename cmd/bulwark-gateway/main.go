// Command bulwark-gateway is a small HTTP gateway that fronts a JSON
// upstream with rate limiting and resilient forwarding: incoming requests
// are admission-controlled per client IP, then proxied to the upstream
// through a retrying, circuit-broken client.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/bulwark-io/bulwark/ratelimit"
	"github.com/bulwark-io/bulwark/resilient"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bulwark-gateway: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := resilient.New(
		resilient.WithBaseURL(cfg.UpstreamURL),
		resilient.WithAPIKey(cfg.UpstreamAPIKey),
		resilient.WithRetries(cfg.MaxRetries),
		resilient.WithRequestTimeout(cfg.RequestTimeout),
		resilient.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}
	defer client.Close()

	limiter := ratelimit.NewLimiter(ratelimit.WithLogger(logger))
	defer limiter.Close()

	gw := &gateway{client: client, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", gw.handleHealth)
	r.Route("/forward", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, cfg.Policy, ratelimit.WithMiddlewareLogger(logger)))
		r.Post("/*", gw.handleForward)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr, "upstream", cfg.UpstreamURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type gateway struct {
	client *resilient.Client
	logger *slog.Logger
}

// handleForward proxies the JSON request body to the upstream path after
// "/forward" and relays the upstream's JSON reply.
func (g *gateway) handleForward(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimPrefix(r.URL.Path, "/forward/")
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing upstream path")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var payload json.RawMessage = body
	if len(body) == 0 {
		payload = json.RawMessage(`{}`)
	}

	var out json.RawMessage
	if err := g.client.Call(r.Context(), target, payload, &out); err != nil {
		g.writeUpstreamError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (g *gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := g.client.Metrics()
	status := "ok"
	code := http.StatusOK
	if m.BreakerOpen || !m.Connection.Online {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":               status,
		"breaker_open":         m.BreakerOpen,
		"upstream_online":      m.Connection.Online,
		"consecutive_failures": m.ConsecutiveFailures,
		"in_flight":            m.InFlight,
	})
}

// writeUpstreamError maps client errors to gateway responses.
func (g *gateway) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var re *resilient.Error
	switch {
	case errors.Is(err, resilient.ErrCircuitOpen), errors.Is(err, resilient.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, "upstream unavailable")
	case errors.As(err, &re) && re.Status >= 400 && re.Status < 500:
		writeError(w, re.Status, re.Message)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		g.logger.Warn("upstream call failed",
			"path", r.URL.Path,
			"request_id", r.Header.Get("X-Request-ID"),
			"error", err)
		writeError(w, http.StatusBadGateway, "upstream error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// requestID assigns a UUID to each request unless the caller supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", r.Header.Get("X-Request-ID"))
		})
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
