package pool

import (
	"runtime"
	"sync/atomic"

	"github.com/lixenwraith/swarm/arena"
)

// WorkFunc is the unit of work executed by a worker. scratch is the
// executing thread's private arena, already reset for this item.
type WorkFunc func(payload any, workerID uint32, scratch *arena.Arena)

type workItem struct {
	fn       WorkFunc
	payload  any
	priority uint32
	// seq is the producer cursor value of the slot's current item.
	// A consumer that claimed cursor c spins until seq == c, which
	// publishes the fn/payload writes (store-release, load-acquire).
	seq atomic.Int64
}

// workQueue is a lock-free MPMC ring. Producers claim a slot with a single
// fetch-add on head; consumers claim with a fetch-add on tail and back out
// when the claim raced past head. FIFO by slot index; the priority field is
// retained in the item but does not reorder the queue.
type workQueue struct {
	head atomic.Int64 // producer cursor
	tail atomic.Int64 // consumer cursor
	size int64
	mask int64
	items []workItem

	// statistics
	itemsAdded     atomic.Int64
	itemsProcessed atomic.Int64
}

func newWorkQueue(minCapacity int) *workQueue {
	// Power-of-two capacity for mask indexing, with 2x headroom over the
	// caller's worst-case burst.
	size := 1
	for size < minCapacity*2 {
		size *= 2
	}

	q := &workQueue{
		size:  int64(size),
		mask:  int64(size - 1),
		items: make([]workItem, size),
	}
	q.resetSlots()
	return q
}

func (q *workQueue) resetSlots() {
	for i := range q.items {
		q.items[i].seq.Store(-1)
	}
}

// tryAdd claims the next head slot and publishes the item.
// Overflow means the queue was sized below the frame's submission burst,
// which the pool treats as fatal.
func (q *workQueue) tryAdd(fn WorkFunc, payload any, priority uint32) bool {
	index := q.head.Add(1) - 1
	if index-q.tail.Load() >= q.size {
		q.head.Add(-1) // leave no claimed-but-unpublished slot behind
		return false
	}

	slot := &q.items[index&q.mask]
	slot.fn = fn
	slot.payload = payload
	slot.priority = priority
	slot.seq.Store(index)

	q.itemsAdded.Add(1)
	return true
}

// tryGet claims the next tail slot and copies the item out, so the slot
// can be reused the moment the claim lands. Returns ok=false when the
// queue is empty or the claim raced past head (the claim is rolled back
// with a fetch-sub).
func (q *workQueue) tryGet() (fn WorkFunc, payload any, ok bool) {
	if q.tail.Load() >= q.head.Load() {
		return nil, nil, false
	}

	index := q.tail.Add(1) - 1
	if index >= q.head.Load() {
		q.tail.Add(-1) // undo the claim
		return nil, nil, false
	}

	slot := &q.items[index&q.mask]
	for slot.seq.Load() != index {
		// Producer has claimed this slot but not yet published the item.
		runtime.Gosched()
	}

	q.itemsProcessed.Add(1)
	return slot.fn, slot.payload, true
}

// remaining reports whether unclaimed items exist. A snapshot, valid only
// as a hint.
func (q *workQueue) remaining() bool {
	return q.tail.Load() < q.head.Load()
}

func (q *workQueue) reset() {
	q.head.Store(0)
	q.tail.Store(0)
	q.itemsAdded.Store(0)
	q.itemsProcessed.Store(0)
	q.resetSlots()
}
