package resilient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bulwark-io/bulwark/internal/httpclient"
	"github.com/bulwark-io/bulwark/internal/scrub"
)

// Transport executes one physical attempt against the upstream. It is the
// only dependency the client has on the outside world; the request/response
// shape on the wire belongs to the transport, not to the client.
type Transport interface {
	Send(ctx context.Context, target string, body []byte) (*Response, error)
}

// Response is one upstream reply, before classification.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// HTTPTransport sends JSON POST requests over a tuned net/http client.
type HTTPTransport struct {
	client  *http.Client
	apiKey  string
	maxBody int64
}

// NewHTTPTransport creates the default transport from cfg.
func NewHTTPTransport(cfg Config) *HTTPTransport {
	hc := httpclient.DefaultConfig()
	hc.ConnectTimeout = cfg.ConnectTimeout
	hc.IdleTimeout = cfg.IdleConnTimeout
	hc.KeepAlive = cfg.KeepAlive
	hc.MaxIdleConns = cfg.MaxIdleConns

	return &HTTPTransport{
		client:  httpclient.New(hc),
		apiKey:  cfg.APIKey,
		maxBody: cfg.MaxResponseSize,
	}
}

// NewHTTPTransportWithClient wraps an existing http.Client (useful for testing).
func NewHTTPTransportWithClient(client *http.Client, cfg Config) *HTTPTransport {
	return &HTTPTransport{
		client:  client,
		apiKey:  cfg.APIKey,
		maxBody: cfg.MaxResponseSize,
	}
}

// Send posts body to target and reads the reply up to the configured size cap.
func (t *HTTPTransport) Send(ctx context.Context, target string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, scrub.KeyFromError(err, t.apiKey)
	}
	defer resp.Body.Close()

	maxBody := t.maxBody
	if maxBody <= 0 {
		maxBody = DefaultConfig().MaxResponseSize
	}

	// Read maxBody+1 to detect overflow without a false positive at the cap.
	limited := io.LimitReader(resp.Body, maxBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > maxBody {
		return nil, ErrResponseTooLarge
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   data,
	}, nil
}

// Close releases idle connections held by the transport.
func (t *HTTPTransport) Close() {
	httpclient.CloseIdle(t.client)
}

// resolveTarget joins a relative target onto the configured base URL.
func resolveTarget(baseURL, target string) string {
	if baseURL == "" || strings.Contains(target, "://") {
		return target
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(target, "/")
}
