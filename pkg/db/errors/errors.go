// Package dberrors holds errors reported by stores.
package dberrors

import (
	"fmt"

	"github.com/opst/relmon/pkg/domain"
)

// requested record is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return domain.ErrMissing
}

// requested record collides with existing one.
type Conflict struct {
	Table    string
	Identity string
}

var _ error = Conflict{}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s is already in %s", c.Identity, c.Table)
}

func (c Conflict) Unwrap() error {
	return domain.ErrConflict
}
