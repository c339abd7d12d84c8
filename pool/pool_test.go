package pool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/lixenwraith/swarm/arena"
)

const testArenaBytes = 1 << 16

func TestStartValidation(t *testing.T) {
	if _, err := Start(0, 16, testArenaBytes); err != ErrNoWorkers {
		t.Errorf("zero workers: got %v want %v", err, ErrNoWorkers)
	}
	if _, err := Start(2, 0, testArenaBytes); err != ErrZeroQueue {
		t.Errorf("zero queue: got %v want %v", err, ErrZeroQueue)
	}
}

func TestSubmitAndDrain(t *testing.T) {
	p, err := Start(4, 256, testArenaBytes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown()

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		p.Submit(func(payload any, _ uint32, _ *arena.Arena) {
			counter.Add(1)
		}, nil)
	}
	p.WaitForCompletion(0)

	if got := counter.Load(); got != 100 {
		t.Errorf("executed %d items, want 100", got)
	}
	if got := p.ItemsProcessed(); got != 100 {
		t.Errorf("ItemsProcessed = %d, want 100", got)
	}
	if got := p.ItemsAdded(); got != 100 {
		t.Errorf("ItemsAdded = %d, want 100", got)
	}
}

// Every payload must be executed exactly once even under a wide fan-out.
func TestEachItemExecutedOnce(t *testing.T) {
	p, err := Start(8, 2048, testArenaBytes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown()

	const items = 2000
	hits := make([]atomic.Int32, items)
	for i := 0; i < items; i++ {
		p.Submit(func(payload any, _ uint32, _ *arena.Arena) {
			hits[payload.(int)].Add(1)
		}, i)
	}
	p.WaitForCompletion(0)

	for i := range hits {
		if n := hits[i].Load(); n != 1 {
			t.Fatalf("item %d executed %d times", i, n)
		}
	}
}

// The waiting thread participates: with zero pool workers impossible, so
// stall the single worker and verify the main thread drains the rest.
func TestMainThreadParticipates(t *testing.T) {
	p, err := Start(1, 64, testArenaBytes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown()

	release := make(chan struct{})
	p.Submit(func(any, uint32, *arena.Arena) {
		<-release
	}, nil)

	var mainExecuted atomic.Int64
	for i := 0; i < 16; i++ {
		p.Submit(func(_ any, workerID uint32, _ *arena.Arena) {
			if workerID == MainThreadID {
				mainExecuted.Add(1)
			}
		}, nil)
	}

	done := make(chan struct{})
	go func() {
		p.WaitForCompletion(0)
		close(done)
	}()

	// Give the main waiter time to drain while the worker is stuck.
	time.Sleep(50 * time.Millisecond)
	close(release)
	<-done

	if mainExecuted.Load() == 0 {
		t.Error("main thread executed no items while the worker was stalled")
	}
}

func TestWorkerScratchIsResetPerItem(t *testing.T) {
	p, err := Start(1, 64, testArenaBytes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown()

	var bad atomic.Int64
	for i := 0; i < 10; i++ {
		p.Submit(func(_ any, _ uint32, scratch *arena.Arena) {
			if scratch.Offset() != 0 {
				bad.Add(1)
			}
			scratch.Acquire(1024)
		}, nil)
		p.WaitForCompletion(0)
	}

	if bad.Load() != 0 {
		t.Errorf("%d items saw a dirty scratch arena", bad.Load())
	}
}

func TestResetAllowsReuse(t *testing.T) {
	p, err := Start(2, 32, testArenaBytes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown()

	var counter atomic.Int64
	work := func(any, uint32, *arena.Arena) { counter.Add(1) }

	for frame := 0; frame < 50; frame++ {
		for i := 0; i < 8; i++ {
			p.Submit(work, nil)
		}
		p.WaitForCompletion(0)
		p.Reset()
	}

	if got := counter.Load(); got != 400 {
		t.Errorf("executed %d items over 50 frames, want 400", got)
	}
	if p.ItemsAdded() != 0 {
		t.Errorf("stats should clear on Reset, got %d", p.ItemsAdded())
	}
}

func TestQueueOverflowPanics(t *testing.T) {
	p, err := Start(1, 2, testArenaBytes) // ring size 4
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	p.Submit(func(any, uint32, *arena.Arena) {
		close(started)
		<-release
	}, nil)
	<-started // worker now stuck, queue empty

	defer func() {
		if recover() == nil {
			t.Error("submit past capacity should panic")
		}
	}()
	for i := 0; i < 8; i++ {
		p.Submit(func(any, uint32, *arena.Arena) {}, nil)
	}
}

func TestWaitForCompletionTimeout(t *testing.T) {
	p, err := Start(1, 16, testArenaBytes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func(any, uint32, *arena.Arena) {
		close(started)
		<-release
	}, nil)
	<-started

	start := time.Now()
	p.WaitForCompletion(100 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timed wait took %v", elapsed)
	}
	close(release)
	p.WaitForCompletion(0)
}

func TestShutdownJoinsWorkers(t *testing.T) {
	p, err := Start(4, 64, testArenaBytes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var counter atomic.Int64
	for i := 0; i < 32; i++ {
		p.Submit(func(any, uint32, *arena.Arena) { counter.Add(1) }, nil)
	}
	p.WaitForCompletion(0)

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}
