// Package memory provides the in-process work queue shared by discovery and
// the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
)

// Queue is an unbounded FIFO of image jobs with an outstanding count. Every
// Push must be matched by exactly one MarkDone after the popped job has been
// processed; Drain returns once the two balance.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []crawler.ImageJob
	outstanding int
	closed      bool
	onChange    func(outstanding int)
}

// Option customises a Queue.
type Option func(*Queue)

// WithOutstandingHook registers fn to observe every change of the
// outstanding count. fn runs with the queue lock held and must not block.
func WithOutstandingHook(fn func(outstanding int)) Option {
	return func(q *Queue) {
		q.onChange = fn
	}
}

// NewQueue constructs an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends a job and increments the outstanding count.
func (q *Queue) Push(job crawler.ImageJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return crawler.ErrQueueClosed
	}
	q.items = append(q.items, job)
	q.setOutstanding(q.outstanding + 1)
	q.cond.Broadcast()
	return nil
}

// Pop blocks until a job is available. Once the queue is closed, remaining
// jobs are still handed out; after that Pop returns crawler.ErrQueueClosed.
func (q *Queue) Pop(ctx context.Context) (crawler.ImageJob, error) {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return crawler.ImageJob{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	if len(q.items) == 0 {
		return crawler.ImageJob{}, crawler.ErrQueueClosed
	}
	job := q.items[0]
	q.items[0] = crawler.ImageJob{}
	q.items = q.items[1:]
	return job, nil
}

// MarkDone records that one popped job finished, whatever its outcome.
func (q *Queue) MarkDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.outstanding == 0 {
		panic("memory: MarkDone called more times than Push")
	}
	q.setOutstanding(q.outstanding - 1)
	if q.outstanding == 0 {
		q.cond.Broadcast()
	}
}

// Drain blocks until every pushed job has been marked done.
func (q *Queue) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstanding > 0 && ctx.Err() == nil {
		q.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("drain canceled: %w", err)
	}
	return nil
}

// Close stops accepting new jobs and releases idle Pop callers. Closing twice is safe.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Outstanding reports jobs pushed but not yet marked done.
func (q *Queue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Len reports jobs waiting to be popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) setOutstanding(n int) {
	q.outstanding = n
	if q.onChange != nil {
		q.onChange(n)
	}
}

func (q *Queue) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}
