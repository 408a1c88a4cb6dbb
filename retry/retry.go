package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Options control retries performed by Do.
type Options struct {
	MaxRetries int
	BaseWait   time.Duration
	MaxWait    time.Duration
}

// Option configures Do.
type Option func(*Options)

// WithMaxRetries sets how many times a failed call is retried.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithBaseWait sets the wait before the first retry. It doubles after each
// attempt, up to the max wait.
func WithBaseWait(d time.Duration) Option {
	return func(o *Options) { o.BaseWait = d }
}

// WithMaxWait caps the wait between attempts.
func WithMaxWait(d time.Duration) Option {
	return func(o *Options) { o.MaxWait = d }
}

// Do calls fn until it succeeds, returns an error that is not recoverable,
// the retries are used up or ctx is done. The last error is returned.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	options := Options{MaxRetries: 2, BaseWait: 500 * time.Millisecond, MaxWait: 30 * time.Second}
	for _, opt := range opts {
		opt(&options)
	}
	wait := options.BaseWait
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= options.MaxRetries || !IsRecoverable(err) {
			return err
		}
		jitter := time.Duration(0)
		if wait > 0 {
			jitter = time.Duration(rand.Int64N(int64(wait)/4 + 1))
		}
		timer := time.NewTimer(wait + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		wait *= 2
		if options.MaxWait > 0 && wait > options.MaxWait {
			wait = options.MaxWait
		}
	}
}
