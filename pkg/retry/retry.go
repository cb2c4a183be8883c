// Package retry calls an operation repeatedly with capped exponential
// backoff, honoring retry-after hints embedded in error text.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Retrier runs operations with retries. It is safe for concurrent use.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryIf     func(error) bool
	sleep       func(time.Duration)
	onRetry     func(attempt int, delay time.Duration, err error)
}

// New creates a Retrier with default settings.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		retryIf:     func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		lastErr   error
		permanent bool
		attempt   int
	)
	b := &hintedBackOff{r: r, lastErr: &lastErr}

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := fn(ctx)
		lastErr = err
		if err != nil && !r.retryIf(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		if r.onRetry != nil {
			r.onRetry(attempt, d, err)
		}
	}

	var timer backoff.Timer
	if r.sleep != nil {
		timer = &sleepTimer{sleep: r.sleep}
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), notify, timer)
	switch {
	case err == nil:
		return nil
	case permanent, ctx.Err() != nil:
		return err
	default:
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}
}

// Delay returns the wait before retry n (1-based) after err.
func (r *Retrier) Delay(n int, err error) time.Duration {
	d := r.maxDelay
	if shift := n - 1; shift < 32 {
		if exp := r.baseDelay << shift; exp > 0 && exp < d {
			d = exp
		}
	}
	if hint, ok := RetryAfterHint(err); ok && hint > d {
		d = hint
	}
	return min(d, r.maxDelay)
}

type hintedBackOff struct {
	r       *Retrier
	n       int
	lastErr *error
}

func (b *hintedBackOff) Reset() { b.n = 0 }

func (b *hintedBackOff) NextBackOff() time.Duration {
	b.n++
	if b.n >= b.r.maxAttempts {
		return backoff.Stop
	}
	return b.r.Delay(b.n, *b.lastErr)
}

// sleepTimer fires as soon as the injected sleep returns.
type sleepTimer struct {
	sleep func(time.Duration)
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	t.sleep(d)
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }

var hintPatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // compiled once
	regexp.MustCompile(`(?i)retry[- ]after:?\s*(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds?)?`),
	regexp.MustCompile(`(?i)retry in\s*(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds?)?`),
	regexp.MustCompile(`(?i)"?retryDelay"?\s*:\s*"?(\d+(?:\.\d+)?)(ms|s)?"?`),
}

// retryAfterDate matches the HTTP-date form of Retry-After, e.g.
// "Retry-After: Wed, 21 Oct 2015 07:28:00 GMT".
var retryAfterDate = regexp.MustCompile( //nolint:gochecknoglobals // compiled once
	`(?i)retry-after:?\s*([a-z]{3},\s*\d{1,2}[\s-][a-z]{3}[\s-]\d{2,4}\s+\d{2}:\d{2}:\d{2}\s*GMT)`)

// RetryAfterHint extracts a server-suggested wait from err's text, such as
// "retry in 12s", "Retry-After: 3" or "retryDelay": "7s". Bare numbers are seconds.
// A Retry-After HTTP-date yields the time left until that instant, or zero
// if it has passed.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	msg := err.Error()
	if m := retryAfterDate.FindStringSubmatch(msg); m != nil {
		if at, perr := http.ParseTime(m[1]); perr == nil {
			return max(time.Until(at), 0), true
		}
	}
	for _, re := range hintPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		v, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil {
			continue
		}
		unit := time.Second
		if m[2] == "ms" {
			unit = time.Millisecond
		}
		return time.Duration(v * float64(unit)), true
	}
	return 0, false
}
