package worker

import "errors"

// ErrStopped completes jobs that were still queued when the worker stopped.
var ErrStopped = errors.New("worker stopped")
