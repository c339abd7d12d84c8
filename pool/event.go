package pool

import (
	"sync/atomic"
	"time"
)

// event is a manual-reset event: once Set it stays signaled until Reset.
// Set and Reset must not race with each other; the pool only resets from
// the frame boundary (Reset/reset_work) and from the long-wait tier when
// the queue is provably drained, mirroring the producer/consumer split.
type event struct {
	signaled atomic.Bool
	ch       atomic.Pointer[chan struct{}]
}

func newEvent(signaled bool) *event {
	e := &event{}
	ch := make(chan struct{})
	e.ch.Store(&ch)
	if signaled {
		e.signaled.Store(true)
		close(ch)
	}
	return e
}

// set signals the event and wakes every waiter.
func (e *event) set() {
	if !e.signaled.Swap(true) {
		close(*e.ch.Load())
	}
}

// reset returns the event to not-signaled. The fresh channel is published
// before the flag flips so a concurrent set never closes a stale channel
// twice.
func (e *event) reset() {
	if !e.signaled.Load() {
		return
	}
	ch := make(chan struct{})
	e.ch.Store(&ch)
	e.signaled.Store(false)
}

// wait blocks until the event is signaled or the timeout elapses.
// Returns true when the event was signaled.
func (e *event) wait(timeout time.Duration) bool {
	if e.signaled.Load() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-*e.ch.Load():
		return true
	case <-timer.C:
		return e.signaled.Load()
	}
}
