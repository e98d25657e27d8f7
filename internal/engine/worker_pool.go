package engine

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue. When
// the queue is full the submitting goroutine runs the task itself, so work is
// never dropped and the queue never grows past its capacity.
type workerPool[T any] struct {
	ctx     context.Context
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity
// capacity. Cancelling ctx stops the workers, abandoning anything still queued.
func newWorkerPool[T any](ctx context.Context, n, capacity int, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		ctx:     ctx,
		queue:   make(chan T, capacity),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run()
		}()
	}
	return p
}

func (p *workerPool[T]) run() {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(p.ctx, t)
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit enqueues t without blocking. If the queue is full, t runs on the
// calling goroutine before Submit returns and Submit reports false.
// Submit must not be called after Drain.
func (p *workerPool[T]) Submit(t T) (queued bool) {
	select {
	case p.queue <- t:
		return true
	default:
		p.process(p.ctx, t)
		return false
	}
}

// Drain closes the queue and waits for all workers to finish.
func (p *workerPool[T]) Drain() {
	close(p.queue)
	p.wg.Wait()
}

// QueueLen returns how many tasks are currently queued.
func (p *workerPool[T]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *workerPool[T]) QueueCap() int {
	return cap(p.queue)
}
