package resilient_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwark-io/bulwark/internal/testutil"
	"github.com/bulwark-io/bulwark/resilient"
)

func TestDedup_ConcurrentIdenticalCallsShareOneRequest(t *testing.T) {
	var attempts atomic.Int32

	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(200 * time.Millisecond)
		testutil.ReplyChat(w, "shared")
	})

	client := testutil.NewTestClient(t, server.BaseURL())

	type reply struct {
		Text string `json:"text"`
	}

	var wg sync.WaitGroup
	results := make([]reply, 2)
	errs := make([]error, 2)

	start := time.Now()
	for i := 0; i < 2; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			errs[i] = client.Call(context.Background(), "/v1/chat",
				map[string]any{"q": "same"}, &results[i])
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), attempts.Load(), "identical concurrent calls share one request")
	assert.Equal(t, "shared", results[0].Text)
	assert.Equal(t, "shared", results[1].Text)
	assert.Less(t, elapsed, 350*time.Millisecond, "passenger must not serialize behind the owner")
}

func TestDedup_DifferentPayloadsAreSeparateRequests(t *testing.T) {
	var attempts atomic.Int32

	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(100 * time.Millisecond)
		testutil.ReplyChat(w, "ok")
	})

	client := testutil.NewTestClient(t, server.BaseURL())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_ = client.Call(context.Background(), "/v1/chat",
				map[string]any{"q": i}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), attempts.Load())
}

func TestDedup_SharedFailure(t *testing.T) {
	var attempts atomic.Int32

	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(100 * time.Millisecond)
		testutil.ReplyServerError(w, 500, "boom")
	})

	client := testutil.NewTestClient(t, server.BaseURL())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			errs[i] = client.Call(context.Background(), "/v1/chat",
				map[string]any{"q": "same"}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), attempts.Load())
	for _, err := range errs {
		require.Error(t, err)
		var cerr *resilient.Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, resilient.KindServer, cerr.Kind)
	}
}

func TestDedup_FreshCallAfterCompletion(t *testing.T) {
	var attempts atomic.Int32

	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		testutil.ReplyChat(w, "ok")
	})

	client := testutil.NewTestClient(t, server.BaseURL())

	require.NoError(t, client.Call(context.Background(), "/v1/chat", map[string]any{"q": "same"}, nil))
	require.NoError(t, client.Call(context.Background(), "/v1/chat", map[string]any{"q": "same"}, nil))

	assert.Equal(t, int32(2), attempts.Load(), "sequential identical calls are not deduplicated")
}

func TestDedup_PassengerCancelDoesNotAbortOwner(t *testing.T) {
	var attempts atomic.Int32
	release := make(chan struct{})

	server := testutil.NewMockUpstream(t)
	server.On("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		<-release
		testutil.ReplyChat(w, "ok")
	})

	client := testutil.NewTestClient(t, server.BaseURL())

	ownerDone := make(chan error, 1)
	go func() {
		ownerDone <- client.Call(context.Background(), "/v1/chat", map[string]any{"q": "same"}, nil)
	}()

	// Let the owner reach the upstream before joining as a passenger.
	require.Eventually(t, func() bool { return attempts.Load() == 1 },
		time.Second, 10*time.Millisecond)

	passengerCtx, cancel := context.WithCancel(context.Background())
	passengerDone := make(chan error, 1)
	go func() {
		passengerDone <- client.Call(passengerCtx, "/v1/chat", map[string]any{"q": "same"}, nil)
	}()

	// Cancel only the passenger: it leaves immediately with its own
	// context error while the owner keeps waiting.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-passengerDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("passenger did not return after cancellation")
	}

	close(release)
	select {
	case err := <-ownerDone:
		assert.NoError(t, err, "owner unaffected by passenger cancellation")
	case <-time.After(time.Second):
		t.Fatal("owner did not complete")
	}

	assert.Equal(t, int32(1), attempts.Load())
}
