package resilient

import (
	"sync"
	"time"
)

// ConnectionStatus is a point-in-time snapshot of upstream connectivity.
type ConnectionStatus struct {
	// Online reports whether calls are expected to reach the upstream.
	// It is set false by the external offline signal and restored by the
	// online signal or by any completed attempt.
	Online bool

	// LastChecked is when connectivity was last observed, zero before the
	// first attempt or signal.
	LastChecked time.Time

	// ResponseTime is the elapsed time of the most recent completed
	// attempt, 0 when no attempt has completed yet.
	ResponseTime time.Duration
}

// connHealth tracks connectivity across all callers of one client.
type connHealth struct {
	mu           sync.RWMutex
	online       bool
	lastChecked  time.Time
	responseTime time.Duration
}

func newConnHealth() *connHealth {
	// Assume online until an attempt or signal says otherwise.
	return &connHealth{online: true}
}

func (h *connHealth) snapshot() ConnectionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return ConnectionStatus{
		Online:       h.online,
		LastChecked:  h.lastChecked,
		ResponseTime: h.responseTime,
	}
}

func (h *connHealth) isOnline() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online
}

// recordResponse notes a completed attempt. Any HTTP response, success or
// error status, proves the connection works.
func (h *connHealth) recordResponse(elapsed time.Duration, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online = true
	h.lastChecked = now
	h.responseTime = elapsed
}

// recordTransportFailure notes an attempt that never produced a response.
// Online state is left to the external signal; a single connect failure does
// not prove the network is down.
func (h *connHealth) recordTransportFailure(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastChecked = now
	h.responseTime = 0
}

func (h *connHealth) setOnline(online bool, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online = online
	h.lastChecked = now
	if !online {
		h.responseTime = 0
	}
}
