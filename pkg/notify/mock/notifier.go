package mock

import (
	"context"
	"sync"

	"github.com/opst/relmon/pkg/notify"
)

// Notifier records events. Impl is optional.
type Notifier struct {
	Impl func(ctx context.Context, ev notify.Event) error

	mu     sync.Mutex
	events []notify.Event
}

var _ notify.Notifier = &Notifier{}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (m *Notifier) Notify(ctx context.Context, ev notify.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()

	if m.Impl != nil {
		return m.Impl(ctx, ev)
	}
	return nil
}

func (m *Notifier) Events() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Event{}, m.events...)
}
