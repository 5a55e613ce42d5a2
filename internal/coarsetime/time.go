// Package coarsetime keeps a clock that is refreshed every 50ms by a
// background goroutine. Pools stamp connection use with it instead of
// calling time.Now on every release.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var now atomic.Pointer[time.Time]

func init() {
	t := time.Now()
	now.Store(&t)

	ticker := time.NewTicker(tick)
	go func() {
		for t := range ticker.C {
			now.Store(&t)
		}
	}()
}

// Now returns the last refreshed time, at most one tick behind.
func Now() time.Time {
	return *now.Load()
}

// Since is time.Since against the coarse clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
