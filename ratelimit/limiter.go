package ratelimit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bulwark-io/bulwark/internal/syncutil"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Limiter performs admission control keyed by (caller identity, route).
// Each key owns an independent set of fixed windows; per-route policies are
// supplied by the caller on every check and are not stored per key.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry

	logger        *slog.Logger
	now           func() time.Time
	sweepInterval time.Duration
	maxKeys       int

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
	sweepWG     sync.WaitGroup
	closeOnce   sync.Once
}

// entry holds the counters for one key. The counters are guarded by the
// entry's own mutex so checks on different keys do not contend.
// lastUsed uses atomic.Int64 (Unix nanos) to avoid write-lock contention on the hot path.
type entry struct {
	mu       sync.Mutex
	lastUsed atomic.Int64

	count       int
	windowReset time.Time

	hourCount int
	hourReset time.Time

	burstCount int
	burstReset time.Time
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithSweepInterval sets how often expired entries are garbage collected.
// The sweep is an optimization bounding memory to active keys; admission
// results do not depend on its period.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// WithMaxKeys bounds the number of tracked keys. When the bound is reached
// the least recently used entry is evicted to make room.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

// WithClock sets the time source. Useful for testing window rollover.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLimiter creates a Limiter and starts its background sweep.
// Call Close to stop the sweep goroutine.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		entries:       make(map[string]*entry),
		now:           time.Now,
		sweepInterval: 5 * time.Minute,
		maxKeys:       10000,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = slog.Default()
	}

	l.startSweep()

	return l
}

// Check admits or rejects one request for (identity, route) under policy.
// The burst gate is evaluated before the sustained gates, so a bursting
// caller is always told to slow down first regardless of remaining quota.
func (l *Limiter) Check(identity, route string, policy Policy) Result {
	now := l.now()
	e := l.getOrCreate(identity+"\x00"+route, now, policy)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !now.Before(e.windowReset) {
		e.count = 0
		e.windowReset = now.Add(minuteWindow)
	}
	if !now.Before(e.hourReset) {
		e.hourCount = 0
		e.hourReset = now.Add(hourWindow)
	}
	if !now.Before(e.burstReset) {
		e.burstCount = 0
		e.burstReset = now.Add(policy.BurstWindow)
	}

	if policy.BurstLimit > 0 && e.burstCount >= policy.BurstLimit {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.burstReset, Reason: ReasonBurst}
	}
	if policy.PerMinute > 0 && e.count >= policy.PerMinute {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.windowReset, Reason: ReasonSustained}
	}
	if policy.PerHour > 0 && e.hourCount >= policy.PerHour {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.hourReset, Reason: ReasonSustained}
	}

	e.count++
	e.hourCount++
	e.burstCount++

	remaining := 0
	if policy.PerMinute > 0 {
		remaining = policy.PerMinute - e.count
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: e.windowReset}
}

// ActiveKeys returns the number of tracked keys.
// Useful for monitoring and testing.
func (l *Limiter) ActiveKeys() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close stops the background sweep and waits for it to exit. It is safe to
// call more than once;
// checks issued after Close still work, only garbage collection stops.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		l.sweepTicker.Stop()
		close(l.sweepDone)
		l.sweepWG.Wait()
	})
}

func (l *Limiter) getOrCreate(key string, now time.Time, policy Policy) *entry {
	nanos := now.UnixNano()

	l.mu.RLock()
	e, exists := l.entries[key]
	l.mu.RUnlock()

	if exists {
		e.lastUsed.Store(nanos)
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if e, exists = l.entries[key]; exists {
		e.lastUsed.Store(nanos)
		return e
	}

	// Evict least recently used if at capacity
	if len(l.entries) >= l.maxKeys {
		var oldestKey string
		oldestTime := nanos
		for k, cand := range l.entries {
			if t := cand.lastUsed.Load(); t < oldestTime {
				oldestTime = t
				oldestKey = k
			}
		}
		if oldestKey != "" {
			delete(l.entries, oldestKey)
		}
	}

	e = &entry{
		windowReset: now.Add(minuteWindow),
		hourReset:   now.Add(hourWindow),
		burstReset:  now.Add(policy.BurstWindow),
	}
	e.lastUsed.Store(nanos)
	l.entries[key] = e
	return e
}

func (l *Limiter) startSweep() {
	l.sweepTicker = time.NewTicker(l.sweepInterval)
	l.sweepDone = make(chan struct{})

	syncutil.Go(&l.sweepWG, func() {
		for {
			select {
			case <-l.sweepDone:
				return
			case <-l.sweepTicker.C:
				l.sweepExpired()
			}
		}
	})
}

// sweepExpired removes entries whose windows have all rolled over. An expired
// entry that survives until the next check behaves identically to an absent
// one, so the sweep never changes admission results.
func (l *Limiter) sweepExpired() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		e.mu.Lock()
		expired := !now.Before(e.windowReset) && !now.Before(e.hourReset) && !now.Before(e.burstReset)
		e.mu.Unlock()
		if expired {
			delete(l.entries, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("rate limiter sweep",
			"removed", removed,
			"active", len(l.entries),
		)
	}
}
