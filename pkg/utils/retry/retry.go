package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry tells Blocking that the attempt should be repeated after backoff.
var ErrRetry = errors.New("retry")

// ErrGiveUp is returned by a Backoff from Limit when retries are exhausted.
var ErrGiveUp = errors.New("retry: gave up")

// Backoff blocks until the next attempt is allowed.
//
// It returns nil to go ahead, or non-nil error to stop retrying.
// When ctx is done, it should return ctx.Err().
type Backoff func(context.Context) error

// StaticBackoff waits for the same interval every time.
func StaticBackoff(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1, 0)
}

// ExponentialBackoff waits for `initial * r^N` at the N-th call.
//
// When ceil is positive, intervals are capped by it.
func ExponentialBackoff(initial time.Duration, r float64, ceil time.Duration) Backoff {
	interval := initial
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * r)
		if 0 < ceil && ceil < interval {
			interval = ceil
		}
		return nil
	}
}

// Limit allows b to be waited at most n times.
func Limit(b Backoff, n int) Backoff {
	count := 0
	return func(ctx context.Context) error {
		if n <= count {
			return ErrGiveUp
		}
		count += 1
		return b(ctx)
	}
}

// Blocking calls f, and calls again after backoff while f returns ErrRetry.
//
// The first call is made without waiting.
//
// # Returns
//
// - T: last return value of f
//
// - error: nil, the error from f which is not ErrRetry,
// or the error from Backoff joined with the last ErrRetry.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	for {
		last, err := f()
		if err == nil || !errors.Is(err, ErrRetry) {
			return last, err
		}
		if berr := b(ctx); berr != nil {
			return last, errors.Join(berr, err)
		}
	}
}
