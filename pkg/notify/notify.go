// Package notify tells owners of RelMons what happened to their jobs.
package notify

import (
	"context"
	"errors"

	"github.com/opst/relmon/pkg/domain"
)

var ErrNotifyFailed = errors.New("notification failed")

type Kind string

const (
	// Reset is sent to the previous owner when someone else resets the RelMon.
	Reset Kind = "reset"

	// Done is sent when the job has finished. Logs may be attached.
	Done Kind = "done"

	// Failed is sent when the job has failed. Logs may be attached.
	Failed Kind = "failed"
)

type Event struct {
	Kind   Kind          `json:"kind"`
	RelMon domain.RelMon `json:"relmon"`

	// Recipient is whom the notification is for.
	Recipient domain.UserInfo `json:"recipient"`

	// By is who caused the event. It is empty for events from the scheduler.
	By domain.UserInfo `json:"by"`

	// Attachment is a local path of a file to be attached. Empty if there are none.
	Attachment string `json:"-"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// None discards every event.
type None struct{}

func (None) Notify(context.Context, Event) error {
	return nil
}

// Multi notifies all of its members.
//
// Failure of a member does not stop others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	errs := []error{}
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
