package pipeline

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Job is one unit of background work.
type Job struct {
	Name string
	Fn   func(ctx context.Context)
}

// Runner decouples the webhook ack from pipeline execution: the handler
// enqueues and returns, a bounded worker pool consumes. Every job runs
// under panic recovery — a failure after the ack can only ever become a
// log line, never a response.
type Runner struct {
	jobs    chan Job
	wg      sync.WaitGroup
	pending sync.WaitGroup
	workers int
}

func NewRunner(workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Runner{
		jobs:    make(chan Job, queueSize),
		workers: workers,
	}
}

// Start launches the worker pool. Workers drain remaining jobs after ctx
// is cancelled before Wait returns.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued; redelivery covers the rest.
			for {
				select {
				case job := <-r.jobs:
					r.run(context.Background(), job)
				default:
					return
				}
			}
		case job := <-r.jobs:
			r.run(ctx, job)
		}
	}
}

func (r *Runner) run(ctx context.Context, job Job) {
	defer r.pending.Done()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("background job panicked",
				"job", job.Name, "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	job.Fn(ctx)
}

// Enqueue schedules a job without blocking. Returns false when the queue
// is saturated; the caller decides whether that is tolerable.
func (r *Runner) Enqueue(name string, fn func(ctx context.Context)) bool {
	r.pending.Add(1)
	select {
	case r.jobs <- Job{Name: name, Fn: fn}:
		return true
	default:
		r.pending.Done()
		return false
	}
}

// WaitIdle blocks until every enqueued job has finished. Test helper.
func (r *Runner) WaitIdle() {
	r.pending.Wait()
}

// Wait blocks until all workers have exited after cancellation.
func (r *Runner) Wait() {
	r.wg.Wait()
}
