package syncutil_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bulwark-io/bulwark/internal/syncutil"
)

func TestGo_RunsAndJoins(t *testing.T) {
	var wg sync.WaitGroup
	var executed atomic.Bool

	syncutil.Go(&wg, func() {
		executed.Store(true)
	})

	wg.Wait()
	assert.True(t, executed.Load())
}

func TestGo_TracksAllGoroutines(t *testing.T) {
	var wg sync.WaitGroup
	var counter atomic.Int32

	for i := 0; i < 20; i++ {
		syncutil.Go(&wg, func() {
			counter.Add(1)
		})
	}

	wg.Wait()
	assert.Equal(t, int32(20), counter.Load())
}
