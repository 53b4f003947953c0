package httputil

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by [Attempt] when the attempt deadline passes before
// the operation completes.
var ErrTimeout = errors.New("attempt timed out")

// Attempt runs fn and races it against timeout. fn receives a context that is
// cancelled when the timer fires, so in-flight requests are abandoned.
//
// If the timer fires first, Attempt returns a retryable error wrapping
// [ErrTimeout]. A result that arrives after the deadline is discarded, even a
// successful one. Cancellation of the parent ctx is returned as ctx.Err().
// A timeout <= 0 disables the race.
func Attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(actx) }()

	select {
	case err := <-done:
		if actx.Err() != nil {
			break
		}
		return err
	case <-actx.Done():
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return Retryable(fmt.Errorf("%w after %s", ErrTimeout, timeout))
}
