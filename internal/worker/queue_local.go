package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ignite/audience-core/internal/pkg/logger"
)

var log = logger.Named("worker")

// Errors returned by LocalQueue.Submit.
var (
	ErrQueueFull   = errors.New("worker: queue is full")
	ErrQueueClosed = errors.New("worker: queue is closed")
)

// LocalQueue runs jobs in-process on a fixed pool of goroutines.
type LocalQueue struct {
	handler Handler
	workers int
	jobs    chan Job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalQueue creates a queue with the given pool size and buffer depth.
func NewLocalQueue(handler Handler, workers, depth int) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	return &LocalQueue{handler: handler, workers: workers, jobs: make(chan Job, depth)}
}

// Start launches the worker pool. Workers exit when Stop is called or ctx is
// done.
func (q *LocalQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx)
	}
}

func (q *LocalQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if err := q.handler.Handle(ctx, job); err != nil {
				log.Error("job failed", "kind", job.Kind, "company_id", job.TenantID, "error", err)
			}
		}
	}
}

// Submit enqueues job without blocking; a full buffer returns ErrQueueFull.
func (q *LocalQueue) Submit(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs, lets queued ones drain and waits for the pool.
func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
