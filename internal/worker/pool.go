package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrQueueFull indicates the task queue is at capacity. Callers decide
// whether to fail the work item or rely on a watchdog sweep.
var ErrQueueFull = errors.New("worker: queue full")

// ErrStopped indicates the pool is no longer accepting tasks.
var ErrStopped = errors.New("worker: pool stopped")

// Task is one unit of asynchronous work. The context is the pool's run
// context; tasks observe its cancellation at their own suspension points.
type Task func(ctx context.Context)

// Pool runs pipeline and runtime tasks on a fixed set of workers with a
// bounded queue. Submit never blocks the caller.
type Pool struct {
	size   int
	tasks  chan Task
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewPool constructs a pool with the given worker count and queue depth.
func NewPool(size, queueDepth int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	if logger != nil {
		logger = logger.With("component", "worker")
	} else {
		logger = slog.Default()
	}
	return &Pool{
		size:   size,
		tasks:  make(chan Task, queueDepth),
		logger: logger,
	}
}

// Start launches the workers. Tasks receive ctx and should stop at their next
// suspension point once it is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.logger.Info("worker pool started", "workers", p.size, "queue_depth", cap(p.tasks))
}

// Submit enqueues a task without blocking. It returns ErrQueueFull when the
// queue is saturated and ErrStopped after Stop. The send happens under the
// mutex so a concurrent Stop cannot close the channel between the stopped
// check and the enqueue.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects further submissions and waits for queued and in-flight tasks
// to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.invoke(ctx, task)
	}
}

func (p *Pool) invoke(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("worker task panicked", "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	task(ctx)
}
