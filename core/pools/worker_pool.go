// Package pools holds the connection worker pool and the byte buffers the
// protocol engine serializes into.
package pools

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 32

// Task represents a unit of work
type Task func()

// WorkerPool runs tasks on a fixed number of goroutines. The queue is
// unbounded: Submit never blocks and never runs the task inline.
type WorkerPool struct {
	numWorkers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool
	done   chan struct{}

	onPanic func(recovered any)
	running sync.WaitGroup

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		busy           atomic.Int64
	}
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithPanicHandler is called with the value of a panicking task. The worker
// survives the panic either way.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(p *WorkerPool) {
		p.onPanic = fn
	}
}

// NewWorkerPool starts numWorkers workers, DefaultWorkers when numWorkers is
// not positive.
func NewWorkerPool(numWorkers int, opts ...Option) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
		done:       make(chan struct{}),
	}
	pool.cond = sync.NewCond(&pool.mu)
	for _, opt := range opts {
		opt(pool)
	}

	pool.running.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.work()
	}
	go func() {
		pool.running.Wait()
		close(pool.done)
	}()

	return pool
}

// Submit queues task. It reports false once the pool is closed.
func (p *WorkerPool) Submit(task Task) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, task)
	p.stats.tasksSubmitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return true
}

func (p *WorkerPool) work() {
	defer p.running.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}

		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *WorkerPool) run(task Task) {
	p.stats.busy.Add(1)
	defer func() {
		p.stats.busy.Add(-1)
		p.stats.tasksCompleted.Add(1)
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()

	task()
}

// Close stops accepting tasks. Queued tasks still run.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
}

// Shutdown closes the pool and waits for the queue to drain or ctx to end.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.Close()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()

	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		TasksQueued:    queued,
		Busy:           int(p.stats.busy.Load()),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksQueued    int
	Busy           int
}
