// Package worker runs background recommendation jobs pulled from the queue.
package worker

import (
	"time"

	"github.com/okian/rankready/pkg/logger"
)

// Option configures an InMemoryWorker. Options given to NewPool apply to every worker.
type Option func(*InMemoryWorker)

// WithName labels the worker in its log lines.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger replaces the worker's logger.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithJobTimeout bounds a single recommendation job, which may span several
// generation attempts. Non-positive values keep the two-minute default.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}
