package retry

import "time"

// Option applies a configuration option to the Retrier.
type Option func(*Retrier)

// WithMaxAttempts sets the total number of calls, including the first.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry. It doubles on every retry.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

// WithMaxDelay caps a single wait, including server hints.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.maxDelay = d
		}
	}
}

// WithRetryIf decides which errors are retried. By default every error is.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) {
		if fn != nil {
			r.retryIf = fn
		}
	}
}

// WithSleep replaces the wait between attempts. fn receives each delay and
// the next attempt starts as soon as it returns.
func WithSleep(fn func(time.Duration)) Option {
	return func(r *Retrier) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithOnRetry registers a callback invoked before every wait.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}
