// Package retry provides a bounded, sequential retry combinator.
package retry

import (
	"context"
	"errors"
)

// ErrNoAttempts is returned when Attempt is called with maxAttempts < 1.
var ErrNoAttempts = errors.New("retry: maxAttempts must be at least 1")

// Attempt calls fn until it succeeds or maxAttempts calls have failed.
// Calls are strictly sequential. The attempt number passed to fn starts at 1.
// On exhaustion the last error is returned together with the number of
// attempts made. A cancelled context stops further attempts and returns the
// last error, or the context error if no attempt was made.
func Attempt[T any](ctx context.Context, maxAttempts int, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	if maxAttempts < 1 {
		return zero, 0, ErrNoAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, attempt - 1, lastErr
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err
	}
	return zero, maxAttempts, lastErr
}
