package resilient_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwark-io/bulwark/internal/testutil"
	"github.com/bulwark-io/bulwark/resilient"
)

func TestClassify_ServerError(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, 503, "maintenance window")
	})

	client := testutil.NewTestClient(t, server.BaseURL())
	err := client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

	var cerr *resilient.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, resilient.KindServer, cerr.Kind)
	assert.Equal(t, 503, cerr.Status)
	assert.Equal(t, "maintenance window", cerr.Message)
	assert.True(t, cerr.IsRetryable())
}

func TestClassify_RateLimitCarriesWaitHint(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyRateLimit(w, 7)
	})

	client := testutil.NewTestClient(t, server.BaseURL())
	err := client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

	var cerr *resilient.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, resilient.KindRateLimit, cerr.Kind)
	assert.Equal(t, 429, cerr.Status)
	assert.Equal(t, 7*time.Second, cerr.RetryAfter)
	assert.True(t, cerr.IsRetryable())
}

func TestClassify_AuthStatuses(t *testing.T) {
	tests := []struct {
		name  string
		reply http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { testutil.ReplyUnauthorized(w) }},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) { testutil.ReplyForbidden(w, "no access") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockUpstream(t)
			server.On("/v1/chat", tt.reply)

			client := testutil.NewTestClient(t, server.BaseURL())
			err := client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

			var cerr *resilient.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, resilient.KindAuth, cerr.Kind)
			assert.False(t, cerr.IsRetryable())
		})
	}
}

func TestClassify_NetworkErrorOnClosedServer(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	baseURL := server.BaseURL()
	server.Server.Close()

	client := testutil.NewTestClient(t, baseURL)
	err := client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, resilient.ErrMaxRetries)

	var cerr *resilient.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, resilient.KindNetwork, cerr.Kind)
	assert.Zero(t, cerr.Status)
	assert.True(t, cerr.IsRetryable())
}

func TestClassify_AttemptTimeout(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		testutil.ReplyChat(w, "too late")
	})

	client := testutil.NewTestClient(t, server.BaseURL(),
		resilient.WithRequestTimeout(50*time.Millisecond))

	err := client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

	var cerr *resilient.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, resilient.KindTimeout, cerr.Kind)
	assert.True(t, cerr.IsRetryable())
}

func TestError_MessageFormat(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyBadRequest(w, "bad input")
	})

	client := testutil.NewTestClient(t, server.BaseURL())
	err := client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "kind=client")
}

func TestError_SentinelMatching(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	client := testutil.NewTestClient(t, server.BaseURL())

	client.SetOnline(false)
	err := client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

	assert.True(t, errors.Is(err, resilient.ErrOffline))
	assert.False(t, errors.Is(err, resilient.ErrCircuitOpen))
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts []resilient.Option
	}{
		{"negative retries", []resilient.Option{resilient.WithRetries(-1)}},
		{"zero timeout", []resilient.Option{resilient.WithRequestTimeout(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resilient.New(tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, resilient.ErrInvalidConfig)
		})
	}
}

func TestResponseTooLarge(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		big := make([]byte, 2048)
		for i := range big {
			big[i] = 'a'
		}
		_, _ = w.Write(big)
	})

	cfg := resilient.DefaultConfig()
	cfg.MaxResponseSize = 1024
	client, err := resilient.NewFromConfig(cfg,
		resilient.WithBaseURL(server.BaseURL()),
		resilient.WithRetries(0))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	err = client.Call(context.Background(), "/v1/chat", map[string]any{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, resilient.ErrResponseTooLarge)

	var cerr *resilient.Error
	require.ErrorAs(t, err, &cerr)
	assert.False(t, cerr.IsRetryable())
}
