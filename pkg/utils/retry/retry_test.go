package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opst/relmon/pkg/utils/retry"
)

func TestBlocking(t *testing.T) {
	t.Run("it returns as soon as f succeeds", func(t *testing.T) {
		waited := 0
		b := func(context.Context) error {
			waited += 1
			return nil
		}
		calls := 0
		got, err := retry.Blocking(context.Background(), b, func() (int, error) {
			calls += 1
			if calls < 3 {
				return calls, fmt.Errorf("%w: not yet", retry.ErrRetry)
			}
			return calls, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if got != 3 || calls != 3 || waited != 2 {
			t.Errorf("got = %d, calls = %d, waited = %d", got, calls, waited)
		}
	})

	t.Run("it stops on non-retry error without waiting", func(t *testing.T) {
		expected := errors.New("fatal")
		b := func(context.Context) error {
			t.Error("backoff should not be called")
			return nil
		}
		_, err := retry.Blocking(context.Background(), b, func() (int, error) {
			return 0, expected
		})
		if !errors.Is(err, expected) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it gives up when backoff is exhausted", func(t *testing.T) {
		b := retry.Limit(retry.StaticBackoff(time.Millisecond), 2)
		calls := 0
		_, err := retry.Blocking(context.Background(), b, func() (int, error) {
			calls += 1
			return 0, retry.ErrRetry
		})
		if !errors.Is(err, retry.ErrGiveUp) || !errors.Is(err, retry.ErrRetry) {
			t.Errorf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d", calls)
		}
	})

	t.Run("it stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		b := retry.ExponentialBackoff(time.Hour, 2, 0)
		_, err := retry.Blocking(ctx, b, func() (int, error) {
			return 0, retry.ErrRetry
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestExponentialBackoff(t *testing.T) {
	b := retry.ExponentialBackoff(5*time.Millisecond, 2, 12*time.Millisecond)
	expected := []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 12 * time.Millisecond}
	for n, e := range expected {
		before := time.Now()
		if err := b(context.Background()); err != nil {
			t.Fatal(err)
		}
		if took := time.Since(before); took < e {
			t.Errorf("#%d: waited %s, expected >= %s", n, took, e)
		}
	}
}
