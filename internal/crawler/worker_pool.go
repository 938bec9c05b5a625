package crawler

import (
	"context"
	"errors"
	"sync"
)

type task func(ctx context.Context)

// WorkerPool runs crawl tasks on a fixed set of goroutines with a bounded
// queue so a deep frontier cannot exhaust memory.
type WorkerPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan task
	wg     sync.WaitGroup
}

// NewWorkerPool starts concurrency workers sharing a queue of queueSize.
func NewWorkerPool(parent context.Context, concurrency, queueSize int) (*WorkerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &WorkerPool{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan task, queueSize),
	}
	for i := 0; i < concurrency; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}
	return pool, nil
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.tasks:
			if !ok {
				return
			}
			fn(p.ctx)
		}
	}
}

// Submit schedules a task. It blocks while the queue is full and fails if
// either context is cancelled first.
func (p *WorkerPool) Submit(ctx context.Context, fn task) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- fn:
		return nil
	}
}

// Close stops the workers and waits for in-flight tasks to return. Tasks
// still sitting in the queue are executed with the cancelled context so
// every submitted task runs exactly once and completion accounting that
// lives in task closures always balances.
func (p *WorkerPool) Close() {
	p.cancel()
	close(p.tasks)
	for fn := range p.tasks {
		fn(p.ctx)
	}
	p.wg.Wait()
}
