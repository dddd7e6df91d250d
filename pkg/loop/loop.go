// Package loop runs rounds of work one after another.
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next is what a round asks the loop to do after it.
type Next struct {
	stop  bool
	err   error
	after time.Duration
}

func (n Next) String() string {
	switch {
	case n.err != nil:
		return fmt.Sprintf("[break] with error: %v", n.err)
	case n.stop:
		return "[break] without error"
	default:
		return fmt.Sprintf("[continue] interval: %s", n.after)
	}
}

// Continue runs the next round after interval, or earlier if woken.
func Continue(interval time.Duration) Next {
	return Next{after: interval}
}

// Break ends the loop. err may be nil.
func Break(err error) Next {
	return Next{stop: true, err: err}
}

// Round is one run of the work.
type Round func(context.Context) Next

type settings struct {
	timeout time.Duration
	wake    <-chan struct{}
}

type Option func(*settings) *settings

// WithTimeout bounds each round by d.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) *settings {
		s.timeout = d
		return s
	}
}

// WakeOn starts the next round as soon as wake receives.
//
// With a buffered channel, a wake while a round is running is kept for the next wait.
func WakeOn(wake <-chan struct{}) Option {
	return func(s *settings) *settings {
		s.wake = wake
		return s
	}
}

// Run calls round repeatedly until it breaks or ctx is done.
//
// Rounds never overlap. The returned error is the one given to Break, or ctx.Err().
func Run(ctx context.Context, round Round, options ...Option) error {
	s := &settings{}
	for _, opt := range options {
		s = opt(s)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := runOnce(ctx, s.timeout, round)
		if next.stop {
			return next.err
		}

		timer := time.NewTimer(next.after)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
	}
}

func runOnce(ctx context.Context, timeout time.Duration, round Round) Next {
	if timeout <= 0 {
		return round(ctx)
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return round(rctx)
}
