// Package controller drives RelMons through their lifecycle.
//
// A Controller reconciles the store with the scheduler in ticks, and serves
// requests changing RelMons. Ticks never overlap.
package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/relmon/pkg/bundle"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
	"github.com/opst/relmon/pkg/loop"
	"github.com/opst/relmon/pkg/notify"
	"github.com/opst/relmon/pkg/recurring"
	"github.com/opst/relmon/pkg/remote"
)

var (
	// ErrStarted is returned when the controller is configured or started twice.
	ErrStarted = errors.New("controller: already started")

	// ErrNotStarted is returned on shutting down a controller which is not started.
	ErrNotStarted = errors.New("controller: not started")
)

// Deps are collaborators of Controller.
type Deps struct {
	Store    kdb.RelMonInterface
	Remote   remote.Executor
	Files    *bundle.FileCreator
	Notifier notify.Notifier
}

// Config tunes the tick loop.
type Config struct {
	// Policy decides when the next tick runs. Default is recurring.Forever(10 * time.Minute).
	Policy recurring.Policy

	// Timeout bounds a tick. 0 means no bound.
	Timeout time.Duration
}

type Controller struct {
	store    kdb.RelMonInterface
	remote   remote.Executor
	files    *bundle.FileCreator
	notifier notify.Notifier

	logger *log.Logger
	clock  func() time.Time

	conf    Config
	trigger *recurring.Trigger
	deletes *queue
	resets  *queue

	// held while a tick runs.
	tickMu sync.Mutex

	// held while Edit or submission reads and writes a RelMon.
	editMu sync.Mutex

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

type Option func(*Controller) *Controller

func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) *Controller {
		c.logger = logger
		return c
	}
}

// WithClock replaces the source of time, which is used to make RelMon ids.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) *Controller {
		c.clock = clock
		return c
	}
}

func New(deps Deps, options ...Option) *Controller {
	discard := log.New("controller")
	discard.SetOutput(io.Discard)

	n := deps.Notifier
	if n == nil {
		n = notify.None{}
	}

	c := &Controller{
		store:    deps.Store,
		remote:   deps.Remote,
		files:    deps.Files,
		notifier: n,

		logger: discard,
		clock:  time.Now,

		conf:    Config{Policy: recurring.Forever(10 * time.Minute)},
		trigger: recurring.NewTrigger(),
		deletes: newQueue(),
		resets:  newQueue(),
	}
	for _, o := range options {
		c = o(c)
	}
	return c
}

// Configure replaces the loop configuration. It should be called before Start.
func (c *Controller) Configure(conf Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrStarted
	}
	if conf.Policy == nil {
		conf.Policy = c.conf.Policy
	}
	c.conf = conf
	return nil
}

// Start runs the tick loop in background, until ctx is done or Shutdown.
//
// The first tick starts immediately.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrStarted
	}
	c.started = true

	lctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	task := recurring.Task(func(ctx context.Context) (bool, error) {
		return false, c.Tick(ctx)
	})

	go func() {
		defer close(c.done)
		err := loop.Run(
			lctx,
			recurring.Monitor(c.logger, task.Applied(c.conf.Policy)),
			loop.WakeOn(c.trigger.C()),
		)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			c.logger.Errorf("tick loop is stopped: %s", err)
		}
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}()
	return nil
}

// Trigger requests a tick as soon as possible.
//
// It never blocks. Triggers while a tick runs are coalesced into one next tick.
func (c *Controller) Trigger() {
	c.trigger.Fire()
}

// Done is closed when the tick loop has stopped. It is nil before Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Shutdown stops the tick loop and waits for the running tick, if any.
//
// It returns the error which has stopped the loop, or ctx.Err() when ctx is done first.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
