// Package queue is the single inbound queue that serializes pipeline passes.
//
// Every upload and every republish request becomes a Job. A single worker
// drains the queue, so appends, recomputes and summary writes never
// interleave within a process.
package queue

import (
	"context"
	"sync"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/metrics"
)

const defaultCapacity = 64

// Kind selects what a job does.
type Kind int

// Job kinds.
const (
	KindUpload Kind = iota
	KindPublish
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Result is the outcome of a job.
type Result struct {
	Report report.Report
	Err    error
}

// Job is one unit of serialized work.
type Job struct {
	Kind   Kind
	Upload model.Upload
	Month  string

	// Abandoned is closed when the submitter no longer waits. Jobs still
	// queued at that point are skipped; started jobs run to completion.
	Abandoned <-chan struct{}

	done chan Result
}

// NewUploadJob creates a job that runs the full pipeline for u.
func NewUploadJob(ctx context.Context, u model.Upload) Job {
	return Job{Kind: KindUpload, Upload: u, Abandoned: ctx.Done(), done: make(chan Result, 1)}
}

// NewPublishJob creates a job that republishes month.
func NewPublishJob(ctx context.Context, month string) Job {
	return Job{Kind: KindPublish, Month: month, Abandoned: ctx.Done(), done: make(chan Result, 1)}
}

// Complete delivers the result. It never blocks.
func (j Job) Complete(r Result) {
	if j.done == nil {
		return
	}
	select {
	case j.done <- r:
	default:
	}
}

// Wait blocks until the job completes or ctx is done.
func (j Job) Wait(ctx context.Context) (report.Report, error) {
	select {
	case r := <-j.done:
		return r.Report, r.Err
	case <-ctx.Done():
		return report.Report{}, ctx.Err()
	}
}

// IsAbandoned reports whether the submitter stopped waiting.
func (j Job) IsAbandoned() bool {
	if j.Abandoned == nil {
		return false
	}
	select {
	case <-j.Abandoned:
		return true
	default:
		return false
	}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It fails with ErrFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns the channel jobs are delivered on. It is closed
	// once the queue is closed and drained.
	Dequeue() <-chan Job

	Len() int
	Cap() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs chan Job

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	cfg := config{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &InMemoryQueue{jobs: make(chan Job, cfg.capacity)}
	metrics.UpdateQueueCapacity(cfg.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}
	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue() <-chan Job {
	return q.jobs
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	n := len(q.jobs)
	metrics.UpdateQueueSize(n)
	return n
}

// Cap implements Queue.
func (q *InMemoryQueue) Cap() int { return cap(q.jobs) }

// Close implements Queue. Jobs already queued stay deliverable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
