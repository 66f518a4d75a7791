package testutil

import (
	"testing"
	"time"

	"github.com/bulwark-io/bulwark/resilient"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

// BreakerNeverTrip returns settings where the breaker never opens.
// Use for retry tests that must not be disturbed by the breaker.
func BreakerNeverTrip() resilient.BreakerSettings {
	return resilient.BreakerSettings{
		Threshold:    1,
		ResetTimeout: time.Hour,
		MaxProbes:    100,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return false
		},
	}
}

// BreakerAggressiveTrip returns settings for testing breaker behavior:
// opens after 2 consecutive failures, stays open long enough to assert on.
func BreakerAggressiveTrip() resilient.BreakerSettings {
	return resilient.BreakerSettings{
		Threshold:    2,
		ResetTimeout: 2 * time.Second,
		MaxProbes:    1,
	}
}

// NewTestClient creates a client pointed at baseURL with no retries.
func NewTestClient(t *testing.T, baseURL string, opts ...resilient.Option) *resilient.Client {
	t.Helper()

	defaultOpts := []resilient.Option{
		resilient.WithBaseURL(baseURL),
		resilient.WithRetries(0),
	}

	client, err := resilient.New(append(defaultOpts, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { client.Close() })
	return client
}

// NewRetryTestClient creates a client for testing retry behavior: the
// breaker never trips and backoff waits go to the supplied sleeper.
func NewRetryTestClient(t *testing.T, baseURL string, sleeper *FakeSleeper, opts ...resilient.Option) *resilient.Client {
	t.Helper()

	defaultOpts := []resilient.Option{
		resilient.WithBaseURL(baseURL),
		resilient.WithBreakerSettings(BreakerNeverTrip()),
	}
	if sleeper != nil {
		defaultOpts = append(defaultOpts, resilient.WithSleeper(sleeper))
	}

	client, err := resilient.New(append(defaultOpts, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { client.Close() })
	return client
}

// NewBreakerTestClient creates a client for testing breaker behavior:
// aggressive trip settings and no retries.
func NewBreakerTestClient(t *testing.T, baseURL string, opts ...resilient.Option) *resilient.Client {
	t.Helper()

	defaultOpts := []resilient.Option{
		resilient.WithBaseURL(baseURL),
		resilient.WithBreakerSettings(BreakerAggressiveTrip()),
		resilient.WithRetries(0),
	}

	client, err := resilient.New(append(defaultOpts, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { client.Close() })
	return client
}
