// Package pool provides a fixed-size worker pool with a bounded task queue.
//
// The pool applies backpressure instead of growing: when the queue is full,
// Submit waits up to a configurable timeout and then rejects the task with
// ErrOverloaded. This keeps latency bounded under load rather than letting
// an unbounded queue absorb it.
package pool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrOverloaded is returned by Submit when the task queue stays full for
	// the whole submit timeout.
	ErrOverloaded = errors.New("pool: overloaded, task queue full")

	// ErrClosed is returned by Submit after Shutdown has started.
	ErrClosed = errors.New("pool: closed")
)

// Options configures a Pool.
type Options struct {
	// Workers is the number of worker goroutines. Defaults to GOMAXPROCS.
	Workers int

	// QueueCapacity is the size of the bounded task queue. Defaults to
	// twice the worker count.
	QueueCapacity int

	// SubmitTimeout is how long Submit waits for queue space before
	// rejecting with ErrOverloaded. Zero means reject immediately when
	// the queue is full.
	SubmitTimeout time.Duration

	// OnWorkerStart runs once in each worker goroutine before it begins
	// taking tasks. Used to pin workers to CPUs. The returned cleanup
	// (may be nil) runs when the worker exits.
	OnWorkerStart func(workerID int) (cleanup func())
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers       int   `json:"workers"`
	QueueDepth    int   `json:"queue_depth"`
	QueueCapacity int   `json:"queue_capacity"`
	Submitted     int64 `json:"submitted"`
	Rejected      int64 `json:"rejected"`
	Completed     int64 `json:"completed"`
}

// Pool is a fixed set of worker goroutines consuming from a bounded queue.
type Pool struct {
	workers       int
	queueCapacity int
	submitTimeout time.Duration

	taskCh chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup

	closed   atomic.Bool
	submitMu sync.RWMutex

	submitted atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
}

// New creates and starts a worker pool.
func New(opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = workers * 2
	}

	p := &Pool{
		workers:       workers,
		queueCapacity: capacity,
		submitTimeout: opts.SubmitTimeout,
		taskCh:        make(chan func(), capacity),
		stopCh:        make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i, opts.OnWorkerStart)
	}

	return p
}

func (p *Pool) worker(id int, onStart func(int) func()) {
	defer p.wg.Done()

	if onStart != nil {
		if cleanup := onStart(id); cleanup != nil {
			defer cleanup()
		}
	}

	for {
		select {
		case <-p.stopCh:
			// Drain queued tasks before exiting so accepted work
			// always runs.
			for {
				select {
				case task, ok := <-p.taskCh:
					if !ok {
						return
					}
					task()
					p.completed.Add(1)
				default:
					return
				}
			}
		case task, ok := <-p.taskCh:
			if !ok {
				return
			}
			task()
			p.completed.Add(1)
		}
	}
}

// Submit enqueues a task for execution.
//
// The fast path enqueues without blocking. If the queue is full, Submit
// waits up to the configured submit timeout (also bounded by ctx) and
// returns ErrOverloaded if no slot frees up.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		p.rejected.Add(1)
		return ErrClosed
	}

	// Fast path: queue has room.
	select {
	case p.taskCh <- task:
		p.submitted.Add(1)
		return nil
	default:
	}

	if p.submitTimeout <= 0 {
		p.rejected.Add(1)
		return ErrOverloaded
	}

	timer := time.NewTimer(p.submitTimeout)
	defer timer.Stop()

	select {
	case p.taskCh <- task:
		p.submitted.Add(1)
		return nil
	case <-timer.C:
		p.rejected.Add(1)
		return ErrOverloaded
	case <-p.stopCh:
		p.rejected.Add(1)
		return ErrClosed
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued and in-flight tasks
// to finish. It returns ctx.Err() if the context expires first; workers
// keep draining in the background in that case.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.submitMu.Lock()
	close(p.stopCh)
	close(p.taskCh)
	p.submitMu.Unlock()

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

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:       p.workers,
		QueueDepth:    len(p.taskCh),
		QueueCapacity: p.queueCapacity,
		Submitted:     p.submitted.Load(),
		Rejected:      p.rejected.Load(),
		Completed:     p.completed.Load(),
	}
}
