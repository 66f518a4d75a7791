package resilient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBodyMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"slow down"}`, "slow down"},
		{"error string", `{"error":"bad token"}`, "bad token"},
		{"error object", `{"error":{"message":"nested"}}`, "nested"},
		{"message wins over error", `{"message":"a","error":"b"}`, "a"},
		{"not json", `<html>nope</html>`, ""},
		{"empty", ``, ""},
		{"no known fields", `{"detail":"x"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bodyMessage([]byte(tt.body)))
		})
	}
}

func TestBodyRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, bodyRetryAfter([]byte(`{"retry_after":5}`)))
	assert.Equal(t, 1500*time.Millisecond, bodyRetryAfter([]byte(`{"retry_after":1.5}`)))
	assert.Zero(t, bodyRetryAfter([]byte(`{"retry_after":0}`)))
	assert.Zero(t, bodyRetryAfter([]byte(`{}`)))
	assert.Zero(t, bodyRetryAfter([]byte(`garbage`)))
}

func TestResolveTarget(t *testing.T) {
	assert.Equal(t, "http://api.test/v1/chat", resolveTarget("http://api.test", "/v1/chat"))
	assert.Equal(t, "http://api.test/v1/chat", resolveTarget("http://api.test/", "v1/chat"))
	assert.Equal(t, "https://other.test/x", resolveTarget("http://api.test", "https://other.test/x"))
	assert.Equal(t, "/v1/chat", resolveTarget("", "/v1/chat"))
}

func TestDedupKey(t *testing.T) {
	a := dedupKey("/v1/chat", []byte(`{"q":1}`))
	b := dedupKey("/v1/chat", []byte(`{"q":1}`))
	c := dedupKey("/v1/chat", []byte(`{"q":2}`))
	d := dedupKey("/v1/other", []byte(`{"q":1}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)

	// The separator keeps (target, body) boundaries unambiguous.
	assert.NotEqual(t, dedupKey("ab", []byte("c")), dedupKey("a", []byte("bc")))
}

func TestBackoffDelay(t *testing.T) {
	c := &Client{config: DefaultConfig()}

	// Hinted waits take precedence over computed backoff.
	hinted := &Error{Kind: KindRateLimit, Retryable: true, RetryAfter: 9 * time.Second}
	assert.Equal(t, 9*time.Second, c.backoffDelay(1, hinted))

	plain := &Error{Kind: KindServer, Retryable: true}
	for attempt, base := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
	} {
		d := c.backoffDelay(attempt, plain)
		assert.GreaterOrEqual(t, d, base, "attempt %d", attempt)
		assert.Less(t, d, base+base/5, "attempt %d jitter bound", attempt)
	}

	// Deep attempts are capped.
	d := c.backoffDelay(10, plain)
	assert.LessOrEqual(t, d, c.config.RetryMaxWait+c.config.RetryMaxWait/5)
	assert.GreaterOrEqual(t, d, c.config.RetryMaxWait)
}
