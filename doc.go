// Package bulwark provides a client-side resilience layer for unreliable
// upstream HTTP services.
//
// bulwark combines two independent, composable components:
//
//   - resilient: wraps outbound calls with timeout, retry with backoff,
//     circuit breaking, duplicate suppression, and connection-health
//     tracking.
//   - ratelimit: per-key admission control with burst and sustained-rate
//     windows, for the serving side of the same application.
//
// The components never call each other; they compose only through the
// caller. The Guard type in this package is that caller for the common
// gateway case: admit an inbound request, then forward it upstream.
//
// # Quick Start
//
//	guard, err := bulwark.New(
//	    bulwark.WithUpstream("https://api.example.com"),
//	    bulwark.WithPolicy(ratelimit.Policy{
//	        PerMinute:   30,
//	        BurstLimit:  5,
//	        BurstWindow: 10 * time.Second,
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer guard.Close()
//
//	if res := guard.Admit(clientIP, "/v1/chat"); !res.Allowed {
//	    // reply 429 with a hint from res.ResetAt
//	}
//	var reply ChatReply
//	err = guard.Call(ctx, "/v1/chat", req, &reply)
//
// # Separate components
//
// Each component stands alone:
//
//	import "github.com/bulwark-io/bulwark/resilient"
//	client, _ := resilient.New(resilient.WithRetries(3))
//
//	import "github.com/bulwark-io/bulwark/ratelimit"
//	limiter := ratelimit.NewLimiter()
package bulwark
