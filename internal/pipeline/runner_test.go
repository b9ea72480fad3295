package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerExecutesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(2, 8)
	r.Start(ctx)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if !r.Enqueue("count", func(context.Context) { ran.Add(1) }) {
			t.Fatal("Enqueue returned false with queue headroom")
		}
	}
	r.WaitIdle()

	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d, want 5", got)
	}
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(1, 4)
	r.Start(ctx)

	var after atomic.Bool
	r.Enqueue("boom", func(context.Context) { panic("deliberate") })
	r.Enqueue("after", func(context.Context) { after.Store(true) })
	r.WaitIdle()

	if !after.Load() {
		t.Error("worker died with the panicking job; later jobs never ran")
	}
}

func TestRunnerEnqueueRejectsWhenSaturated(t *testing.T) {
	// Runner never started: no workers drain the queue.
	r := NewRunner(1, 2)

	if !r.Enqueue("a", func(context.Context) {}) {
		t.Fatal("first enqueue should fit")
	}
	if !r.Enqueue("b", func(context.Context) {}) {
		t.Fatal("second enqueue should fit")
	}
	if r.Enqueue("c", func(context.Context) {}) {
		t.Error("third enqueue should be rejected, not block")
	}
}

func TestRunnerDrainsQueueOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRunner(1, 8)
	r.Start(ctx)

	var ran atomic.Int32
	block := make(chan struct{})
	r.Enqueue("slow", func(context.Context) {
		<-block
		ran.Add(1)
	})
	for i := 0; i < 3; i++ {
		r.Enqueue("queued", func(context.Context) { ran.Add(1) })
	}

	cancel()
	close(block)

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("workers did not exit after cancellation")
	}

	if got := ran.Load(); got != 4 {
		t.Errorf("ran = %d, want 4 (queued jobs drained on shutdown)", got)
	}
}
