// Package ratelimit provides per-key admission control with a two-tier
// budget: a short burst window to smooth spikes, and fixed per-minute and
// per-hour windows for the sustained rate.
//
// Keys combine a caller identity with a logical route name, so one caller
// hitting two routes has two unrelated counters. State is held in process;
// expired counters are garbage collected by a background sweep.
//
// # Usage
//
//	limiter := ratelimit.NewLimiter()
//	defer limiter.Close()
//
//	result := limiter.Check(clientIP, "/v1/chat", ratelimit.Policy{
//	    PerMinute:   30,
//	    BurstLimit:  5,
//	    BurstWindow: 10 * time.Second,
//	})
//	if !result.Allowed {
//	    // reject with 429, Retry-After from result.ResetAt
//	}
package ratelimit
