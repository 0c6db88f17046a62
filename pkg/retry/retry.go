// Package retry implements the shared retry policy used by the fetch and
// scrape layers for failures the HTTP transport does not handle itself.
package retry

import (
	"context"
	"time"
)

// Policy describes how an operation is retried: how many attempts in total,
// how long to wait between them, and which errors are worth another try.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	// Values below 1 are treated as 1.
	Attempts int

	// Backoff returns the wait before retry number n (0-based). A nil
	// Backoff retries immediately.
	Backoff func(n int) time.Duration

	// RetryIf filters errors. A nil RetryIf retries every error.
	RetryIf func(err error) bool
}

// Exponential returns a backoff that doubles on every retry:
// base, 2*base, 4*base, ...
func Exponential(base time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		return base << n
	}
}

// Linear returns a backoff that grows by step on every retry:
// step, 2*step, 3*step, ...
func Linear(step time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		return time.Duration(n+1) * step
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// It returns the error of the last attempt, or ctx.Err() when the context
// ends while waiting for a retry.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			var wait time.Duration
			if p.Backoff != nil {
				wait = p.Backoff(attempt - 1)
			}
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if p.RetryIf != nil && !p.RetryIf(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
