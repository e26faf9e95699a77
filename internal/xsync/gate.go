// Package xsync provides the small set of lock-free primitives shared by
// every demand-driven publisher in this module: a single-flight drain gate
// and an additive-with-saturation demand counter.
package xsync

import "sync/atomic"

// Gate serializes a recurring "drain" critical section across concurrent
// callers without a mutex. It implements the classic missed-work-counter
// pattern: the first caller to arrive becomes the sole active drainer and
// loops until no further work was requested while it was running; every
// other concurrent caller just records that work is pending and returns
// immediately, trusting the active drainer to pick it up.
//
// This is the "non-blocking drain loop using a single atomic work-in-progress
// flag" called for when serializing per-subscription signal delivery: the
// critical section (draining a buffer, emitting one item) is short and
// uncontended in the steady state, so a spin-free counter beats a mutex.
type Gate struct {
	wip int32
}

// Enter reports whether the caller became the sole active drainer. If it
// returns false, another goroutine is already draining and will observe
// this caller's state change on its next pass; the caller must not run the
// drain body itself.
func (g *Gate) Enter() bool {
	return atomic.AddInt32(&g.wip, 1) == 1
}

// Leave must be called once per drain pass by the goroutine that received
// Enter() == true. It reports whether the drain body must run again because
// another caller arrived while this pass was executing.
func (g *Gate) Leave() bool {
	return atomic.AddInt32(&g.wip, -1) != 0
}

// Run drives body through the Enter/Leave protocol: if the caller becomes
// the active drainer, body is invoked repeatedly until no further work was
// requested concurrently. If another goroutine is already draining, Run
// returns immediately without invoking body.
func (g *Gate) Run(body func()) {
	if !g.Enter() {
		return
	}

	for {
		body()

		if !g.Leave() {
			return
		}
	}
}
