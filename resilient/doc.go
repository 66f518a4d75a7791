// Package resilient wraps outbound upstream calls with resilience features.
//
// # Features
//
//   - Per-attempt timeout with cancellation
//   - Retry with exponential backoff and crypto jitter
//   - Circuit breaker with sony/gobreaker
//   - Duplicate suppression: identical concurrent calls share one request
//   - Connection-health tracking with an external online/offline signal
//   - Classified errors with retryability and wait hints
//
// # Usage
//
//	client, err := resilient.New(
//	    resilient.WithBaseURL("https://api.example.com"),
//	    resilient.WithRetries(3),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	reply, err := resilient.CallResult[ChatReply](client, ctx, "/v1/chat", req)
//	if err != nil {
//	    var cerr *resilient.Error
//	    if errors.As(err, &cerr) && cerr.Retryable {
//	        // offer a manual retry after cerr.RetryAfter
//	    }
//	}
package resilient
