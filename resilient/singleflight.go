package resilient

import (
	"context"
	"sync"
)

// singleFlight coalesces concurrent identical calls into one physical call.
// The first caller for a key owns the call; later callers wait for the
// owner's outcome without issuing their own.
type singleFlight[T any] struct {
	mu    sync.Mutex
	calls map[string]*flight[T]
}

type flight[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Do executes fn once per key across concurrent callers. Waiters whose
// context is cancelled stop waiting and return ctx.Err(); the owner's call
// keeps running so other waiters still get its outcome.
func (sf *singleFlight[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, error) {
	sf.mu.Lock()
	if sf.calls == nil {
		sf.calls = make(map[string]*flight[T])
	}

	if f, ok := sf.calls[key]; ok {
		sf.mu.Unlock()
		select {
		case <-f.done:
			return f.result, f.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	f := &flight[T]{done: make(chan struct{})}
	sf.calls[key] = f
	sf.mu.Unlock()

	f.result, f.err = fn()

	// Remove before publishing so a caller arriving after the outcome is
	// delivered starts a fresh call.
	sf.mu.Lock()
	delete(sf.calls, key)
	sf.mu.Unlock()
	close(f.done)

	return f.result, f.err
}

// Len returns the number of keys with a call in flight.
func (sf *singleFlight[T]) Len() int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return len(sf.calls)
}
