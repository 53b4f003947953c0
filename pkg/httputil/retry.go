package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (transport errors, attempt timeouts, unexpected
// statuses, truncated bodies) with this type so that [Do] knows to attempt
// the operation again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a [RetryableError]. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped with [RetryableError].
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Policy controls how [Do] repeats a failing operation.
type Policy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 are treated as 1.
	Attempts int

	// Delay is the pause before the second attempt. It doubles after each
	// further failure. Zero retries immediately.
	Delay time.Duration

	// OnRetry, if set, is called before each retry with the 1-based number of
	// the attempt that just failed and its error.
	OnRetry func(attempt int, err error)
}

// Do runs fn under p. fn receives the 1-based attempt number.
//
// Only errors wrapped with [RetryableError] are retried; anything else is
// returned immediately. Do returns the last error once every attempt has
// failed, or ctx.Err() if ctx is done during a backoff.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Delay
	var lastErr error

	for i := range attempts {
		if err := fn(i + 1); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i == attempts-1 {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(i+1, lastErr)
		}
		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return lastErr
}
