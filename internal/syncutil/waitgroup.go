// Package syncutil holds small concurrency helpers shared across packages.
package syncutil

import "sync"

// Go spawns fn in a goroutine tracked by wg. Callers own the WaitGroup and
// decide when to Wait; background workers started this way can be joined on
// shutdown instead of leaked.
//
//	var wg sync.WaitGroup
//	syncutil.Go(&wg, worker)
//	...
//	wg.Wait()
func Go(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}
