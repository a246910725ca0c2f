package async

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool bounds concurrently running offloaded work. It exists for
// operations that must run outside a request goroutine but should not be
// allowed to fan out without limit, stop-all teardowns being the main case.
// The pool must be closed explicitly at process exit.
type WorkerPool struct {
	sem    *semaphore.Weighted
	logger PanicLogger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewWorkerPool creates a pool allowing at most size concurrent jobs.
func NewWorkerPool(size int, logger PanicLogger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger,
	}
}

// Submit runs fn on the pool, blocking while the pool is saturated.
// The context bounds only the wait for a slot, not fn itself.
func (p *WorkerPool) Submit(ctx context.Context, name string, fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return err
	}

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer Recover(p.logger, name)
		fn()
	}()
	return nil
}

// Close rejects further submissions and waits for in-flight jobs.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}
