package bulwark_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwark-io/bulwark"
	"github.com/bulwark-io/bulwark/internal/testutil"
	"github.com/bulwark-io/bulwark/ratelimit"
)

func TestGuard_AdmitThenForward(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	server.On("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyJSON(w, map[string]any{"id": "ord-1", "status": "created"})
	})

	guard, err := bulwark.New(
		bulwark.WithUpstream(server.BaseURL()),
		bulwark.WithAPIKey("sk-test"),
		bulwark.WithRetries(0),
	)
	require.NoError(t, err)
	t.Cleanup(func() { guard.Close() })

	res := guard.Admit("user-1", "orders")
	require.True(t, res.Allowed)

	var order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err = guard.Call(context.Background(), "/v1/orders", map[string]any{"sku": "x"}, &order)

	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, "created", order.Status)

	capture := server.LastCapture()
	require.NotNil(t, capture)
	capture.AssertMethod(t, http.MethodPost)
	capture.AssertPath(t, "/v1/orders")
	capture.AssertHeader(t, "Authorization", "Bearer sk-test")
	capture.AssertJSONField(t, "sku", "x")
}

func TestGuard_PolicyEnforced(t *testing.T) {
	server := testutil.NewMockUpstream(t)

	guard, err := bulwark.New(
		bulwark.WithUpstream(server.BaseURL()),
		bulwark.WithPolicy(ratelimit.Policy{
			PerMinute:   10,
			BurstLimit:  2,
			BurstWindow: 10 * time.Second,
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { guard.Close() })

	require.True(t, guard.Admit("user-1", "orders").Allowed)
	require.True(t, guard.Admit("user-1", "orders").Allowed)

	res := guard.Admit("user-1", "orders")
	assert.False(t, res.Allowed)
	assert.Equal(t, ratelimit.ReasonBurst, res.Reason)

	// Another caller is unaffected.
	assert.True(t, guard.Admit("user-2", "orders").Allowed)
}

func TestGuard_InvalidPolicyRejected(t *testing.T) {
	_, err := bulwark.New(
		bulwark.WithUpstream("http://localhost:1"),
		bulwark.WithPolicy(ratelimit.Policy{PerMinute: 5, BurstLimit: 50, BurstWindow: time.Second}),
	)

	require.Error(t, err)
	var perr *ratelimit.PolicyError
	assert.ErrorAs(t, err, &perr)
}

func TestGuard_MetricsPassThrough(t *testing.T) {
	server := testutil.NewMockUpstream(t)

	guard, err := bulwark.New(bulwark.WithUpstream(server.BaseURL()))
	require.NoError(t, err)
	t.Cleanup(func() { guard.Close() })

	guard.SetOnline(false)
	m := guard.Metrics()
	assert.False(t, m.Connection.Online)

	guard.SetOnline(true)
	assert.True(t, guard.Metrics().Connection.Online)
}
