package flow

import (
	"context"
	"sync"
)

const (
	defaultMaxWorkers = 4
	minWorkers        = 1
)

// PoolStats is a live snapshot of a WorkerPool's utilization (§5).
type PoolStats struct {
	Available int
	Total     int
	Queued    int
}

// WorkerPool bounds the concurrency of parallel-branch execution. Submit
// blocks until a slot is free or ctx is cancelled; SubmitMany runs a batch
// of functions concurrently and waits for all to finish, returning the
// first error encountered (§5 cooperative concurrency model).
type WorkerPool struct {
	mu        sync.Mutex
	sem       chan struct{}
	total     int
	queued    int
}

// NewWorkerPool creates a pool with maxWorkers slots, floored at 1 (§5: "
// maxWorkers ... defaults to 4, floored at 1").
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	return &WorkerPool{sem: make(chan struct{}, maxWorkers), total: maxWorkers}
}

// Submit runs fn in the pool, blocking until a slot is available or done
// is closed (typically ctx.Done()).
func (p *WorkerPool) Submit(done <-chan struct{}, fn func()) bool {
	p.mu.Lock()
	p.queued++
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
		p.mu.Lock()
		p.queued--
		p.mu.Unlock()
	case <-done:
		p.mu.Lock()
		p.queued--
		p.mu.Unlock()
		return false
	}

	defer func() { <-p.sem }()
	fn()
	return true
}

// SubmitMany runs every fn concurrently through the pool, waiting for all
// to complete, and returns the first non-nil error. On the first error, the
// context handed to every fn is cancelled: branches already running are
// expected to observe ctx and unwind, and branches still queued on the pool
// never start at all (§4.4 "the remaining branches are cancelled and the
// first error is surfaced").
func (p *WorkerPool) SubmitMany(ctx context.Context, fns []func(ctx context.Context) error) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	recordErr := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for _, fn := range fns {
		fn := fn
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := p.Submit(cctx.Done(), func() {
				recordErr(fn(cctx))
			})
			if !ok {
				recordErr(cctx.Err())
			}
		}()
	}
	wg.Wait()

	return firstErr
}

// Stats returns a live snapshot of the pool's utilization.
func (p *WorkerPool) Stats() PoolStats {
	p.mu.Lock()
	queued := p.queued
	p.mu.Unlock()
	inUse := len(p.sem)
	return PoolStats{
		Available: p.total - inUse,
		Total:     p.total,
		Queued:    queued,
	}
}
