// Package pool runs frame-scoped simulation work on a fixed worker set fed
// by a lock-free MPMC ring. Waiting is adaptive (spin, yield, event wait)
// and the thread calling WaitForCompletion participates by draining items
// itself. Each worker owns a private scratch arena that is reset before
// every item it executes.
package pool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/swarm/arena"
)

// MainThreadID is the worker ID reported for items executed by the thread
// inside WaitForCompletion rather than by a pool worker.
const MainThreadID = uint32(0xFFFFFFFF)

const (
	// spinThreshold is the miss count before a worker stops spinning and
	// starts yielding; at 10x it moves to timed event waits.
	spinThreshold = 1000

	eventWaitSlice  = time.Millisecond
	shutdownTimeout = time.Second
)

var (
	ErrNoWorkers       = errors.New("pool needs at least one worker")
	ErrZeroQueue       = errors.New("pool queue capacity must be positive")
	ErrArenaAllocation = errors.New("pool worker arena allocation failed")
)

// Pool is a fixed set of workers consuming a shared work queue.
type Pool struct {
	queue   *workQueue
	arenas  []*arena.Arena
	workers int

	active   atomic.Int64
	shutdown atomic.Bool

	workAvailable *event
	workComplete  *event

	// resetLock serializes reset against itself; it is off the hot path,
	// taken once per frame.
	resetLock atomic.Int64

	mainArena *arena.Arena
	wg        sync.WaitGroup
}

// Start spawns nWorkers workers, each with its own scratch arena of
// arenaBytes, and a ring sized to the next power of two above
// 2*queueCapacity.
func Start(nWorkers, queueCapacity int, arenaBytes uint32) (*Pool, error) {
	if nWorkers < 1 {
		return nil, ErrNoWorkers
	}
	if queueCapacity < 1 {
		return nil, ErrZeroQueue
	}

	p := &Pool{
		queue:         newWorkQueue(queueCapacity),
		arenas:        make([]*arena.Arena, nWorkers),
		workers:       nWorkers,
		workAvailable: newEvent(false),
		workComplete:  newEvent(true), // no work pending at start
	}

	for i := range p.arenas {
		a, err := arena.New(arenaBytes)
		if err != nil {
			return nil, errors.Join(ErrArenaAllocation, err)
		}
		p.arenas[i] = a
	}

	mainArena, err := arena.New(arenaBytes)
	if err != nil {
		return nil, errors.Join(ErrArenaAllocation, err)
	}
	p.mainArena = mainArena

	p.wg.Add(nWorkers)
	for i := 0; i < nWorkers; i++ {
		go p.workerLoop(uint32(i))
	}

	return p, nil
}

// NumWorkers reports the worker count the pool was started with.
func (p *Pool) NumWorkers() int {
	return p.workers
}

// Submit enqueues a work item. The queue is sized for the worst-case burst
// of a frame; overflow indicates mis-sizing and panics.
func (p *Pool) Submit(fn WorkFunc, payload any) {
	p.SubmitPrioritized(fn, payload, 0)
}

// SubmitPrioritized enqueues a work item carrying a priority value. The
// priority is retained in the item but the queue stays FIFO by slot.
func (p *Pool) SubmitPrioritized(fn WorkFunc, payload any, priority uint32) {
	if !p.queue.tryAdd(fn, payload, priority) {
		panic("pool: work queue overflow, queue capacity below frame submission burst")
	}
	p.workComplete.reset()
	p.workAvailable.set()
}

func (p *Pool) workerLoop(id uint32) {
	defer p.wg.Done()

	scratch := p.arenas[id]
	spinCount := 0

	for !p.shutdown.Load() {
		fn, payload, ok := p.queue.tryGet()
		if !ok {
			p.tryWait(&spinCount)
			continue
		}

		spinCount = 0
		p.active.Add(1)
		scratch.Reset()
		fn(payload, id, scratch)

		if p.active.Add(-1) == 0 && !p.queue.remaining() {
			p.workComplete.set()
		}
	}
}

// tryWait is the adaptive idle strategy: tight spin while work is likely
// imminent, cooperative yield for medium waits, then timed event waits so
// an idle pool costs nothing.
func (p *Pool) tryWait(spinCount *int) {
	*spinCount++
	switch {
	case *spinCount < spinThreshold:
		// Tight spin: stay hot for immediately resubmitted work.
	case *spinCount < spinThreshold*10:
		runtime.Gosched()
	default:
		if !p.queue.remaining() && p.active.Load() == 0 {
			p.workAvailable.reset()
		}
		if p.workAvailable.wait(eventWaitSlice) {
			*spinCount = 0
		}
	}
}

// executeNext runs one queued item on the calling thread, using the pool's
// main-thread arena. Returns false when no item was claimable.
func (p *Pool) executeNext() bool {
	fn, payload, ok := p.queue.tryGet()
	if !ok {
		return false
	}

	p.active.Add(1)
	p.mainArena.Reset()
	fn(payload, MainThreadID, p.mainArena)

	if p.active.Add(-1) == 0 && !p.queue.remaining() {
		p.workComplete.set()
	}
	return true
}

// WaitForCompletion blocks until the queue is drained and no worker is
// executing, participating in the drain itself. A timeout of zero waits
// until truly drained; a positive timeout returns early even if work is
// outstanding.
func (p *Pool) WaitForCompletion(timeout time.Duration) {
	if !p.queue.remaining() && p.active.Load() == 0 {
		return
	}

	start := time.Now()
	for {
		if p.executeNext() {
			continue
		}
		if !p.queue.remaining() && p.active.Load() == 0 {
			return
		}

		elapsed := time.Since(start)
		switch {
		case elapsed < 10*time.Millisecond:
			// Aggressive spin while the tail of the frame drains.
		case elapsed < 50*time.Millisecond:
			runtime.Gosched()
		default:
			if p.workComplete.wait(eventWaitSlice) {
				return
			}
			if timeout > 0 && elapsed > timeout {
				return
			}
		}
	}
}

// Reset returns the pool to the no-work-pending state for the next frame.
// Callers must not submit concurrently with Reset.
func (p *Pool) Reset() {
	for !p.resetLock.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
	p.queue.reset()
	p.active.Store(0)
	p.resetLock.Store(0)

	p.workComplete.set()
	p.workAvailable.reset()
}

// Shutdown stops the workers and joins them with a bounded timeout.
func (p *Pool) Shutdown() {
	p.shutdown.Store(true)
	p.workAvailable.set()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
}

// ItemsAdded reports the total items enqueued since the last Reset.
func (p *Pool) ItemsAdded() int64 {
	return p.queue.itemsAdded.Load()
}

// ItemsProcessed reports the total items executed since the last Reset.
func (p *Pool) ItemsProcessed() int64 {
	return p.queue.itemsProcessed.Load()
}
