// Package worker runs the single consumer of the pipeline queue.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/monthlyrank/internal/adapters/mq/queue"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/logger"
	"github.com/okian/monthlyrank/pkg/metrics"
)

// Handler performs one pipeline pass for a job.
type Handler interface {
	Handle(ctx context.Context, j queue.Job) (report.Report, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j queue.Job) (report.Report, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, j queue.Job) (report.Report, error) {
	return f(ctx, j)
}

// Queue defines how the worker receives jobs.
type Queue interface {
	Dequeue() <-chan queue.Job
}

// Worker drains a queue one job at a time.
type Worker struct {
	queue   Queue
	handler Handler
	name    string
	logger  logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	processed int64
	failed    int64
}

// New creates a worker.
func New(q Queue, h Handler, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Start runs the worker loop in a goroutine. Later calls do nothing.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		metrics.UpdateWorkerCount(1)
		go w.Run(ctx)
	})
}

// Run processes jobs until ctx is done, Shutdown is called or the queue is
// closed and drained. Jobs left behind are completed with ErrStopped.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer metrics.UpdateWorkerCount(0)
	defer w.drain()

	jobs := w.queue.Dequeue()
	for {
		// Stop requests win over jobs that are ready at the same time.
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

func (w *Worker) process(ctx context.Context, j queue.Job) {
	if j.IsAbandoned() {
		w.logger.Debug(ctx, "skipping abandoned job", logger.String("kind", j.Kind.String()))
		j.Complete(queue.Result{Err: context.Canceled})
		return
	}
	metrics.RecordQueueDequeue()
	start := time.Now()
	r, err := w.handler.Handle(ctx, j)
	metrics.RecordWorkerProcessingLatency(time.Since(start))

	w.mu.Lock()
	w.processed++
	if err != nil {
		w.failed++
	}
	w.mu.Unlock()

	if err != nil {
		metrics.RecordWorkerError()
		w.logger.Warn(ctx, "job failed",
			logger.String("kind", j.Kind.String()),
			logger.String("upload_id", j.Upload.ID),
			logger.String("month", j.Month),
			logger.Error(err),
		)
	}
	j.Complete(queue.Result{Report: r, Err: err})
}

// drain fails every job still buffered so no submitter waits forever.
func (w *Worker) drain() {
	jobs := w.queue.Dequeue()
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			j.Complete(queue.Result{Err: ErrStopped})
		default:
			return
		}
	}
}

// Shutdown stops the worker after the current job. It must follow Start or Run.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Stats returns the number of handled and failed jobs.
func (w *Worker) Stats() (processed, failed int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed, w.failed
}
