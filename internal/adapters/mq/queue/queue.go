// Package queue holds recommendation warm-up jobs between indicator saves and the worker pool.
//
// The in-memory implementation is a bounded channel of keys. A job whose
// institution/year key is already pending replaces the pending payload and
// Enqueue reports ErrDuplicate, so the worker always sees the latest job.
package queue

import (
	"context"
	"sync"

	"github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Job is the payload flowing through the queue.
type Job = model.RecommendationJob

func jobKey(j Job) string { return model.RecordKey(j.InstitutionID, j.Year) }

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job or reports why it could not.
	Enqueue(ctx context.Context, j Job) error
	// Dequeue returns a channel closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Job
	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int
	// Close stops accepting jobs.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	keys     chan string
	capacity int

	mu      sync.RWMutex
	closed  bool
	pending map[string]Job
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		pending:  make(map[string]Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.keys = make(chan string, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job to the queue without blocking. If the key is already
// pending, j replaces the queued payload in place and ErrDuplicate is
// returned; the job is not lost.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	key := jobKey(j)
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}
	if _, ok := q.pending[key]; ok {
		q.pending[key] = j
		metrics.RecordQueueEnqueueError("duplicate")
		return ErrDuplicate
	}

	select {
	case q.keys <- key:
		q.pending[key] = j
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.keys))
		return nil
	default:
		metrics.RecordQueueEnqueueError("full")
		return ErrFull
	}
}

// Dequeue returns a channel that receives jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case key, ok := <-q.keys:
				if !ok {
					return
				}
				j := q.take(key)
				select {
				case out <- j:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// take removes and returns the latest payload queued under key.
func (q *InMemoryQueue) take(key string) Job {
	q.mu.Lock()
	j := q.pending[key]
	delete(q.pending, key)
	q.mu.Unlock()
	metrics.UpdateQueueSize(len(q.keys))
	return j
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.keys)
}

// Close stops accepting jobs; queued jobs are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.keys)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
