package worker

import (
	"github.com/okian/monthlyrank/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(lg logger.Logger) Option {
	return func(w *Worker) {
		if lg != nil {
			w.logger = lg
		}
	}
}
