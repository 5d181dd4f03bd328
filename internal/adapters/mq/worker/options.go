package worker

import (
	"github.com/aflyhorse/kmstat/pkg/logger"
)

// Option applies a configuration option to the ImportWorker.
type Option func(*ImportWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *ImportWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(log logger.Logger) Option {
	return func(w *ImportWorker) {
		if log != nil {
			w.logger = log
		}
	}
}
