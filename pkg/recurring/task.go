package recurring

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/relmon/pkg/loop"
)

// Task is a unit of work in a loop.
//
// It returns true when it did something and more may be left to do.
// The error is passed to Policy.
type Task func(context.Context) (bool, error)

// Applied makes a loop.Round which decides the next step by p.
func (rt Task) Applied(p Policy) loop.Round {
	return func(ctx context.Context) loop.Next {
		more, err := rt(ctx)
		return p.Next(more, err)
	}
}

// Monitor logs the start and the end of each round.
func Monitor(logger *log.Logger, round loop.Round) loop.Round {
	var counter uint64
	return func(ctx context.Context) loop.Next {
		counter += 1
		n := counter
		started := time.Now()
		logger.Infof("tick start: #%d", n)

		next := round(ctx)
		logger.Infof("tick end: #%d (takes %s): %s", n, time.Since(started), next)
		return next
	}
}
