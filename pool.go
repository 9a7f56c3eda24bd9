package infergate

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("infergate: worker pool closed")
	// ErrPoolFull is returned by Submit when every worker is busy and the
	// queue has no free slot.
	ErrPoolFull = errors.New("infergate: worker pool full")
)

// Task is a unit of background work. A panicking task takes the process
// down with it, so tasks recover their own panics.
type Task func()

// Pool runs tasks on a fixed set of worker goroutines fed by a bounded queue.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines reading from a queue of queueSize.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{tasks: make(chan Task, queueSize)}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues t without blocking. It returns ErrPoolFull when no worker
// or queue slot is free, so callers shed load instead of stalling.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrPoolFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish or ctx
// to be done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t()
	}
}
