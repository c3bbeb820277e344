// Package offload runs CPU-bound work on a fixed pool of workers so that
// request handlers never execute inference on their own goroutine.
package offload

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MadBale/Mewsage-project/internal/cpuspec"
	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/logging"
)

// Pool dispatches queued tasks to a fixed number of workers. The queue in
// front of the workers is unbounded, so Submit never blocks on enqueue and
// never rejects work. Memory grows with sustained overload.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []task
	closed  bool
	workers int
	wg      sync.WaitGroup
	logger  *slog.Logger
}

type task struct {
	fn   func()
	done chan struct{}
}

// NewPool starts a pool with the given number of workers. A non-positive
// count selects the optimal thread count for the host CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = cpuspec.GetCPUSpec().GetOptimalThreadCount()
	}
	p := &Pool{
		workers: workers,
		logger:  logging.ForService("offload"),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "workers", workers)
	return p
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		t.fn()
		close(t.done)
	}
}

// Submit enqueues fn and waits for it to finish. If ctx ends first the
// caller stops waiting but the worker still runs fn to completion.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.Newf("worker pool is shut down").
			Component("offload").
			Category(errors.CategoryGeneric).
			Build()
	}
	t := task{fn: fn, done: make(chan struct{})}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	p.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("offload").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// Shutdown stops accepting work and waits for the workers to drain the
// queue, or until ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("offload").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// Do runs fn on the pool and returns its result. A ctx timeout abandons
// the wait and surfaces a timeout error.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var (
		result T
		runErr error
	)
	if err := p.Submit(ctx, func() {
		result, runErr = fn()
	}); err != nil {
		var zero T
		return zero, err
	}
	return result, runErr
}
