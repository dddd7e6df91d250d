package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/opst/relmon/pkg/domain"
	xe "github.com/opst/relmon/pkg/errors"
)

// ErrStale is returned when a callback reports on a RelMon which has been reset after the job started.
var ErrStale = errors.New("controller: stale update")

// how many times Create looks for a free id.
const idAttempts = 100

// Create registers relmon as a new RelMon owned by user, and wakes the loop.
//
// Id given in relmon is ignored; a new one is assigned from the clock.
//
// Returns
//
// - domain.RelMon: created one.
//
// - error: domain.ErrInvalid when relmon is not valid,
// domain.ErrConflict when the name is taken.
func (c *Controller) Create(ctx context.Context, relmon domain.RelMon, user domain.UserInfo) (domain.RelMon, error) {
	relmon = relmon.Clone()
	if err := relmon.Validate(); err != nil {
		return domain.RelMon{}, err
	}

	same, err := c.store.GetByName(ctx, relmon.Name)
	if err != nil {
		return domain.RelMon{}, xe.Wrap(err)
	}
	if 0 < len(same) {
		return domain.RelMon{}, fmt.Errorf(`%w: name "%s" is used by %s`, domain.ErrConflict, relmon.Name, same[0].Id)
	}

	relmon.Reset(true)
	relmon.UserInfo = user

	base := c.clock().Unix()
	for n := range int64(idAttempts) {
		relmon.Id = strconv.FormatInt(base+n, 10)
		err := c.store.Create(ctx, relmon)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.RelMon{}, xe.Wrap(err)
		}
		c.logger.Infof("%s is created by %s", relmon, user)
		c.Trigger()
		return relmon, nil
	}
	return domain.RelMon{}, fmt.Errorf("%w: no free id around %d", domain.ErrConflict, base)
}

// Edit applies edited to the stored RelMon with the same id, on behalf of user.
//
// When the stored one is done, only changed categories are compared again.
// A change of the name alone renames the published report without running anything.
//
// Otherwise, the RelMon is reset and queued for termination of its job.
//
// Returns
//
// - error: domain.ErrInvalid when edited is not valid,
// domain.ErrMissing when there are no such RelMon,
// domain.ErrConflict when another RelMon has the name.
func (c *Controller) Edit(ctx context.Context, edited domain.RelMon, user domain.UserInfo) error {
	edited = edited.Clone()
	if err := edited.Validate(); err != nil {
		return err
	}

	c.editMu.Lock()
	defer c.editMu.Unlock()

	same, err := c.store.GetByName(ctx, edited.Name)
	if err != nil {
		return xe.Wrap(err)
	}
	for _, s := range same {
		if s.Id != edited.Id {
			return fmt.Errorf(`%w: name "%s" is used by %s`, domain.ErrConflict, edited.Name, s.Id)
		}
	}

	old, err := c.store.Get(ctx, edited.Id)
	if err != nil {
		return err
	}

	if old.Status == domain.Done {
		return c.editDone(ctx, old, edited, user)
	}

	next := old.Clone()
	condorId := next.CondorId
	next.Name = edited.Name
	next.Categories = edited.Categories
	applyResources(&next, edited)
	next.Reset(true)
	if err := c.store.Update(ctx, next); err != nil {
		return xe.Wrap(err)
	}
	// the stored condor id is cleared. queued requests take over the job.
	c.deletes.Carry(next.Id, condorId)
	c.resets.Enqueue(Request{Id: next.Id, Requester: user, CondorId: condorId})
	c.logger.Infof("%s is edited by %s and will be reset", next, user)
	c.Trigger()
	return nil
}

func applyResources(dst *domain.RelMon, src domain.RelMon) {
	if src.CPU != 0 {
		dst.CPU = src.CPU
	}
	if src.Memory != "" {
		dst.Memory = src.Memory
	}
	if src.Disk != "" {
		dst.Disk = src.Disk
	}
}

// changedCategories lists names of categories to be compared again, in order of edited then old.
func changedCategories(old, edited domain.RelMon) []string {
	changed := []string{}
	seen := map[string]struct{}{}
	for _, name := range append(edited.CategoryNames(), old.CategoryNames()...) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		before, inOld := old.BareCategory(name)
		after, inEdited := edited.BareCategory(name)
		switch {
		case inOld != inEdited:
			changed = append(changed, name)
		case !before.Equal(after):
			changed = append(changed, name)
		case edited.Category(name).Rerun:
			changed = append(changed, name)
		}
	}
	return changed
}

func (c *Controller) editDone(ctx context.Context, old, edited domain.RelMon, user domain.UserInfo) error {
	changed := changedCategories(old, edited)

	if len(changed) == 0 {
		if old.Name == edited.Name {
			c.logger.Infof("%s is not changed", old)
			return nil
		}
		if _, err := c.run(ctx, c.files.Rename(old.Id, old.Name, edited.Name)); err != nil {
			return xe.WrapWithNote("renaming report", err)
		}
		renamed := old.Clone()
		renamed.Name = edited.Name
		if err := c.store.Update(ctx, renamed); err != nil {
			return xe.Wrap(err)
		}
		c.logger.Infof("%s is renamed from %q by %s", renamed, old.Name, user)
		return nil
	}

	// results of unchanged categories are kept.
	next := old.Clone()
	next.Categories = make([]domain.Category, 0, len(edited.Categories))
	for _, cat := range edited.Categories {
		if prev := old.Category(cat.Name); prev != nil && !slices.Contains(changed, cat.Name) {
			next.Categories = append(next.Categories, *prev)
			continue
		}
		next.Categories = append(next.Categories, cat)
	}
	next.Name = edited.Name
	next.UserInfo = user
	applyResources(&next, edited)

	next.Reset(false)
	for _, name := range changed {
		next.ResetCategory(name)
	}
	if err := c.store.Update(ctx, next); err != nil {
		return xe.Wrap(err)
	}
	c.logger.Infof("%s is edited by %s. categories to compare again: %v", next, user, changed)
	c.Trigger()
	return nil
}

// EnqueueReset requests to reset the RelMon in the next tick, and wakes the loop.
//
// It returns false when the reset of the RelMon is already queued.
func (c *Controller) EnqueueReset(id string, user domain.UserInfo) bool {
	ok := c.resets.Enqueue(Request{Id: id, Requester: user})
	c.Trigger()
	return ok
}

// EnqueueDelete requests to delete the RelMon in the next tick, and wakes the loop.
//
// It returns false when the deletion of the RelMon is already queued.
func (c *Controller) EnqueueDelete(id string, user domain.UserInfo) bool {
	ok := c.deletes.Enqueue(Request{Id: id, Requester: user})
	c.Trigger()
	return ok
}

// Update records progress reported by the worker.
//
// Categories and status are replaced. When the status is changed, the loop is woken.
//
// Returns
//
// - error: domain.ErrMissing when there are no such RelMon,
// ErrStale when the stored RelMon is waiting for submission.
func (c *Controller) Update(ctx context.Context, id string, status domain.RelMonStatus, categories []domain.Category) error {
	relmon, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if relmon.Status == domain.New {
		return fmt.Errorf("%w: %s is not submitted", ErrStale, relmon)
	}

	previous := relmon.Status
	relmon.Status = status
	relmon.Categories = categories
	if err := c.store.Update(ctx, relmon); err != nil {
		return xe.Wrap(err)
	}
	c.logger.Infof("%s is updated by the worker. status is %s", relmon, status)
	if previous != status {
		c.Trigger()
	}
	return nil
}

// Get returns the RelMon.
func (c *Controller) Get(ctx context.Context, id string) (domain.RelMon, error) {
	return c.store.Get(ctx, id)
}

// List lists RelMons, newest first.
func (c *Controller) List(ctx context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error) {
	return c.store.List(ctx, query, page, pageSize)
}
