package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/opst/relmon/pkg/bundle"
	"github.com/opst/relmon/pkg/condor"
	"github.com/opst/relmon/pkg/domain"
	xe "github.com/opst/relmon/pkg/errors"
	"github.com/opst/relmon/pkg/notify"
	"github.com/opst/relmon/pkg/remote"
	"github.com/opst/relmon/pkg/utils/archive"
)

// Tick reconciles RelMons once.
//
// In order, it
//
// 1. deletes RelMons queued for deletion,
//
// 2. resets RelMons queued for reset,
//
// 3. updates condor status of RelMons in the scheduler, and collects ended ones,
//
// 4. submits new RelMons.
//
// Failures about each RelMon are logged and recorded in the store; they are not returned.
// The returned error is about the store queries which decide what to do.
//
// A tick is not canceled by ctx. It is bounded by Config.Timeout, if set.
// Concurrent calls wait for each other.
func (c *Controller) Tick(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	if 0 < c.conf.Timeout {
		_ctx, cancel := context.WithTimeout(ctx, c.conf.Timeout)
		defer cancel()
		ctx = _ctx
	}

	defer func() {
		if err := c.remote.Close(); err != nil {
			c.logger.Warnf("closing remote sessions: %s", err)
		}
	}()

	c.logger.Infof("relmons to delete: %v", c.deletes.Ids())
	c.drainDeletes(ctx)

	c.logger.Infof("relmons to reset: %v", c.resets.Ids())
	c.drainResets(ctx)

	errs := []error{}
	if err := c.reconcile(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.submitNew(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// run executes script and reports failure when it exits non-zero or writes to stderr.
func (c *Controller) run(ctx context.Context, script remote.Script) (remote.Output, error) {
	out, err := c.remote.Run(ctx, script)
	if err != nil {
		return out, err
	}
	if !out.Ok() {
		return out, fmt.Errorf(
			"%s: exit code %d, stderr: %q", script, out.ExitCode, out.Stderr,
		)
	}
	return out, nil
}

// terminate removes jobs of relmon from the scheduler. Failures are logged only.
func (c *Controller) terminate(ctx context.Context, relmon domain.RelMon, extra int64) {
	ids := []int64{}
	for _, id := range []int64{relmon.CondorId, extra} {
		if 0 < id && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		c.logger.Infof("%s has no job in the scheduler", relmon)
		return
	}
	for _, id := range ids {
		if _, err := c.run(ctx, condor.Remove(id)); err != nil {
			c.logger.Warnf("failed to terminate job %d of %s: %s", id, relmon, err)
			continue
		}
		c.logger.Infof("terminated job %d of %s", id, relmon)
	}
}

func (c *Controller) drainDeletes(ctx context.Context) {
	for _, req := range c.deletes.Take() {
		relmon, err := c.store.Get(ctx, req.Id)
		if errors.Is(err, domain.ErrMissing) {
			c.logger.Warnf("relmon %s to be deleted is not found", req.Id)
			continue
		} else if err != nil {
			c.logger.Errorf("failed to get relmon %s to be deleted, retry next time: %s", req.Id, err)
			c.deletes.Enqueue(req)
			continue
		}

		c.terminate(ctx, relmon, req.CondorId)
		if err := c.store.Delete(ctx, relmon.Id); err != nil {
			c.logger.Errorf("failed to delete %s, retry next time: %s", relmon, err)
			c.deletes.Enqueue(req)
			continue
		}
		c.clear(ctx, relmon.Id)
		c.logger.Infof("%s is deleted by %s", relmon, req.Requester)
	}
}

// clear removes local and remote working directories. Failures are logged only.
func (c *Controller) clear(ctx context.Context, id string) {
	if err := c.files.Clear(id); err != nil {
		c.logger.Warnf("failed to remove local directory of %s: %s", id, err)
	}
	if _, err := c.run(ctx, c.files.Cleanup(id)); err != nil {
		c.logger.Warnf("failed to remove remote directory of %s: %s", id, err)
	}
}

func (c *Controller) drainResets(ctx context.Context) {
	for _, req := range c.resets.Take() {
		relmon, err := c.store.Get(ctx, req.Id)
		if errors.Is(err, domain.ErrMissing) {
			c.logger.Warnf("relmon %s to be reset is not found", req.Id)
			continue
		} else if err != nil {
			c.logger.Errorf("failed to get relmon %s to be reset, retry next time: %s", req.Id, err)
			c.resets.Enqueue(req)
			continue
		}

		c.terminate(ctx, relmon, req.CondorId)

		previous := relmon.UserInfo
		if req.Requester.Login != "" && req.Requester.Login != previous.Login && relmon.Status != domain.Done {
			if err := c.notifier.Notify(ctx, notify.Event{
				Kind: notify.Reset, RelMon: relmon, Recipient: previous, By: req.Requester,
			}); err != nil {
				c.logger.Warnf("failed to notify %s of reset of %s: %s", previous, relmon, err)
			}
		}

		if err := c.saveReset(ctx, req); errors.Is(err, domain.ErrMissing) {
			c.logger.Warnf("%s is gone while resetting", relmon)
			continue
		} else if err != nil {
			c.logger.Errorf("failed to save reset %s, retry next time: %s", relmon, err)
			c.resets.Enqueue(req)
			continue
		}
		c.logger.Infof("%s is reset by %s", relmon, req.Requester)
	}
}

// saveReset resets the stored RelMon, reloading it to keep concurrent edits.
func (c *Controller) saveReset(ctx context.Context, req Request) error {
	c.editMu.Lock()
	defer c.editMu.Unlock()

	relmon, err := c.store.Get(ctx, req.Id)
	if err != nil {
		return err
	}
	relmon.Reset(true)
	if req.Requester.Login != "" {
		relmon.UserInfo = req.Requester
	}
	return c.store.Update(ctx, relmon)
}

// inflight lists RelMons which can have a job in the scheduler.
func (c *Controller) inflight(ctx context.Context) ([]domain.RelMon, error) {
	byStatus, err := c.store.GetByStatus(ctx, domain.Submitted, domain.Running, domain.Finishing)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	running, err := c.store.GetByCondorStatus(ctx, domain.CondorRun)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	seen := map[string]struct{}{}
	ret := []domain.RelMon{}
	for _, r := range slices.Concat(byStatus, running) {
		if _, ok := seen[r.Id]; ok {
			continue
		}
		seen[r.Id] = struct{}{}
		ret = append(ret, r)
	}
	return ret, nil
}

func (c *Controller) reconcile(ctx context.Context) error {
	targets, err := c.inflight(ctx)
	if err != nil {
		return err
	}
	c.logger.Infof("relmons to check: %d", len(targets))
	if len(targets) == 0 {
		return nil
	}

	out, qerr := c.remote.Run(ctx, condor.Query())
	if qerr != nil {
		c.logger.Errorf("failed to query the scheduler: %s", qerr)
	}

	for _, r := range targets {
		status := domain.CondorUnknown
		if qerr == nil {
			status = condor.ParseStatus(r.CondorId, out)
		}
		if status == domain.CondorUnknown {
			c.logger.Warnf(
				"status of job %d of %s is unknown. stdout: %q, stderr: %q",
				r.CondorId, r, out.Stdout, out.Stderr,
			)
		}

		// the worker may have updated it after the listing.
		fresh, err := c.store.Get(ctx, r.Id)
		if err != nil {
			c.logger.Warnf("%s is gone while checking: %s", r, err)
			continue
		}
		if fresh.CondorId != r.CondorId {
			c.logger.Infof("%s is resubmitted while checking. skipped", r)
			continue
		}

		fresh.CondorStatus = status
		if err := c.store.Update(ctx, fresh); err != nil {
			c.logger.Errorf("failed to save condor status of %s: %s", fresh, err)
			continue
		}
		c.logger.Infof("%s: status %s, condor status %s", fresh, fresh.Status, status)

		if !status.Ended() {
			continue
		}
		ended, err := c.store.Get(ctx, r.Id)
		if err != nil {
			c.logger.Warnf("%s is gone before collecting: %s", r, err)
			continue
		}
		c.collect(ctx, ended)
	}
	return nil
}

type download struct {
	name string
	err  error
}

// collect downloads outputs of the ended job, finishes relmon and notifies its owner.
func (c *Controller) collect(ctx context.Context, relmon domain.RelMon) {
	if !relmon.CondorStatus.Ended() {
		c.logger.Infof("%s is not ended: %s", relmon, relmon.CondorStatus)
		return
	}
	c.logger.Infof("collecting outputs of %s", relmon)

	dir := c.files.LocalDir(relmon.Id)
	downloads := []download{}
	if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		c.logger.Errorf("failed to prepare local directory of %s: %s", relmon, err)
	} else {
		for _, name := range bundle.Outputs(relmon.Id) {
			err := c.remote.Download(
				ctx, path.Join(c.files.RemoteDir(relmon.Id), name), filepath.Join(dir, name),
			)
			downloads = append(downloads, download{name: name, err: err})
		}
	}

	fetched := []string{}
	for _, d := range downloads {
		if d.err != nil {
			c.logger.Warnf("%s of %s is not downloaded: %s", d.name, relmon, d.err)
			continue
		}
		fetched = append(fetched, filepath.Join(dir, d.name))
	}

	attachment := ""
	if 0 < len(fetched) {
		dest := filepath.Join(dir, fmt.Sprintf("RELMON_%s_logs.tar.gz", relmon.Id))
		if n, err := archive.TarGz(dest, fetched...); err != nil {
			c.logger.Warnf("failed to archive outputs of %s: %s", relmon, err)
		} else if 0 < n {
			attachment = dest
		}
	}

	kind := notify.Failed
	if relmon.Status != domain.Failed {
		relmon.Status = domain.Done
		kind = notify.Done
	}
	if err := c.store.Update(ctx, relmon); err != nil {
		c.logger.Errorf("failed to save collected %s: %s", relmon, err)
		return
	}
	if err := c.notifier.Notify(ctx, notify.Event{
		Kind: kind, RelMon: relmon, Recipient: relmon.UserInfo, Attachment: attachment,
	}); err != nil {
		c.logger.Warnf("failed to notify %s of %s: %s", relmon.UserInfo, relmon, err)
	}
	c.clear(ctx, relmon.Id)
	c.logger.Infof("%s is %s", relmon, relmon.Status)
}

func (c *Controller) submitNew(ctx context.Context) error {
	news, err := c.store.GetByStatus(ctx, domain.New)
	if err != nil {
		return xe.Wrap(err)
	}
	c.logger.Infof("relmons to submit: %d", len(news))

	for _, r := range news {
		if r.NoSubmission {
			c.logger.Infof("%s is not to be submitted", r)
			continue
		}
		if c.resets.Has(r.Id) || c.deletes.Has(r.Id) {
			c.logger.Infof("%s is waiting for reset or deletion", r)
			continue
		}
		c.submit(ctx, r.Id)
	}
	return nil
}

func (c *Controller) submit(ctx context.Context, id string) {
	relmon, ok := c.prepareSubmission(ctx, id)
	if !ok {
		return
	}
	c.logger.Infof(
		"submitting %s. cpu: %d, memory: %s, disk: %s",
		relmon, relmon.CPU, relmon.Memory, relmon.Disk,
	)

	condorId, err := c.trySubmit(ctx, relmon)
	if err != nil {
		c.logger.Errorf("failed to submit %s: %s", relmon, err)
	} else {
		c.logger.Infof("%s is submitted as job %d", relmon, condorId)
	}

	c.editMu.Lock()
	defer c.editMu.Unlock()

	// it may be edited or queued while submitting.
	current, gerr := c.store.Get(ctx, id)
	if gerr != nil || current.Status != domain.New || c.resets.Has(id) || c.deletes.Has(id) {
		c.logger.Infof("%s is changed while submitting. result is discarded", relmon)
		if err == nil {
			c.abandon(ctx, relmon, condorId)
		}
		return
	}

	if err != nil {
		current.Status = domain.Failed
	} else {
		current.Status = domain.Submitted
		current.CondorId = condorId
		current.CondorStatus = domain.CondorIdle
	}
	if uerr := c.store.Update(ctx, current); uerr != nil {
		c.logger.Errorf("failed to save submitted %s: %s", current, uerr)
		if err == nil {
			c.abandon(ctx, current, condorId)
		}
	}
}

// prepareSubmission resets the RelMon to be submitted and returns its stored form.
func (c *Controller) prepareSubmission(ctx context.Context, id string) (domain.RelMon, bool) {
	c.editMu.Lock()
	defer c.editMu.Unlock()

	relmon, err := c.store.Get(ctx, id)
	if err != nil {
		c.logger.Warnf("relmon %s to be submitted is not available: %s", id, err)
		return domain.RelMon{}, false
	}
	if relmon.Status != domain.New {
		c.logger.Infof("%s is %s now. not submitted", relmon, relmon.Status)
		return domain.RelMon{}, false
	}

	relmon.Reset(false)
	if err := c.store.Update(ctx, relmon); err != nil {
		c.logger.Errorf("failed to save %s before submission: %s", relmon, err)
		return domain.RelMon{}, false
	}
	return relmon, true
}

// abandon hands the job which is not recorded in the store over to a queued request,
// or removes it from the scheduler.
func (c *Controller) abandon(ctx context.Context, relmon domain.RelMon, condorId int64) {
	if condorId <= 0 {
		return
	}
	carried := c.deletes.Carry(relmon.Id, condorId)
	if c.resets.Carry(relmon.Id, condorId) || carried {
		c.logger.Infof("job %d of %s is left to the queued request", condorId, relmon)
		return
	}
	c.terminate(ctx, domain.RelMon{Id: relmon.Id, Name: relmon.Name, CondorId: condorId}, 0)
}

func (c *Controller) trySubmit(ctx context.Context, relmon domain.RelMon) (condorId int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			condorId, err = domain.NoCondorId, fmt.Errorf("panic: %v", r)
		}
	}()

	b, err := c.files.Create(relmon)
	if err != nil {
		return domain.NoCondorId, err
	}
	if _, err := c.run(ctx, c.files.Prepare(relmon.Id)); err != nil {
		return domain.NoCondorId, err
	}
	for _, f := range b.Files {
		if err := c.remote.Upload(ctx, f, path.Join(b.RemoteDir, filepath.Base(f))); err != nil {
			return domain.NoCondorId, err
		}
	}
	out, err := c.remote.Run(ctx, condor.Submit(b.RemoteDir, b.Submit))
	if err != nil {
		return domain.NoCondorId, err
	}
	return condor.ParseSubmit(out)
}
