// Package queue provides a small in-process job queue: a buffered channel
// drained by a fixed worker pool. It stands in for an external queue
// consumer; jobs are lost on process exit, and the publish state machine's
// retry sweep covers that gap for overlay publishing.
package queue

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBuffer = 256

// Handler processes one job. Errors are logged, not retried; retry policy
// belongs to the caller's own state machine.
type Handler[T any] func(ctx context.Context, job T) error

// Queue dispatches jobs of one type to a worker pool.
type Queue[T any] struct {
	name    string
	jobs    chan T
	handler Handler[T]
	log     *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a queue with the given buffer size (<=0 uses a default).
func New[T any](name string, buffer int, handler Handler[T], log *slog.Logger) *Queue[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue[T]{
		name:    name,
		jobs:    make(chan T, buffer),
		handler: handler,
		log:     log,
	}
}

// Start launches workers that drain the queue until ctx is cancelled.
func (q *Queue[T]) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *Queue[T]) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if err := q.handler(ctx, job); err != nil {
				q.log.Warn("queue job failed", "queue", q.name, "error", err)
			}
		}
	}
}

// Enqueue adds a job without blocking. Returns false when the buffer is
// full; callers decide whether dropping is acceptable.
func (q *Queue[T]) Enqueue(job T) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		q.log.Warn("queue full, dropping job", "queue", q.name)
		return false
	}
}

// Close stops accepting jobs and waits for workers to drain the buffer.
func (q *Queue[T]) Close() {
	q.stopOnce.Do(func() { close(q.jobs) })
	q.wg.Wait()
}
