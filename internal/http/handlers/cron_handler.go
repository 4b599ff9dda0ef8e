// Cron entry point HTTP handlers.
//
// An external scheduler (curl in a crontab, a cloud scheduler) POSTs to
// /internal/cron/{name} on a fixed cadence. Every task follows the same
// template: try the distributed lock, skip the cycle with HTTP 202 when the
// lock is held elsewhere, run the task body with the release deferred, then
// record the pass in the cron run ledger. Ledger writes are best-effort
// observability and never fail the task.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/cronlock"
	"github.com/bighog300/artpulse/internal/domain"
	"github.com/bighog300/artpulse/internal/http/middleware"
	"github.com/bighog300/artpulse/internal/repo"
	"github.com/bighog300/artpulse/internal/services"
)

// CronRunner executes registered cron tasks under the distributed lock and
// maintains the run ledger. Cron task names are job names: a cron pass is a
// cron-triggered run of the job of the same name.
type CronRunner struct {
	DB     *gorm.DB
	Locker *cronlock.Locker
	Jobs   *services.JobService
	// Tasks is the set of job names exposed as cron entry points.
	Tasks map[string]struct{}
}

// NewCronRunner registers the given job names as cron tasks.
func NewCronRunner(db *gorm.DB, locker *cronlock.Locker, jobs *services.JobService, names ...string) *CronRunner {
	tasks := make(map[string]struct{}, len(names))
	for _, n := range names {
		tasks[n] = struct{}{}
	}
	return &CronRunner{DB: db, Locker: locker, Jobs: jobs, Tasks: tasks}
}

// RunCron executes the named cron task once.
//
// Responses:
//   - 200 with the finished run row (body failures included, those are data)
//   - 202 when the cycle was skipped: lock held elsewhere, or the job is
//     still running from a previous cycle
//   - 404 for unregistered task names
func (h *Handlers) RunCron(c *gin.Context) {
	name := c.Param("name")
	if _, known := h.cron.Tasks[name]; !known {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown cron task")
		return
	}

	ctx := c.Request.Context()
	lease, err := h.cron.Locker.TryAcquire(ctx, "cron:"+name)
	if err != nil {
		// Fail safe: a store error on acquisition skips the cycle rather
		// than running unguarded.
		middleware.LoggerFrom(c).Warn().Err(err).Str("cron", name).Msg("cron lock error, skipping cycle")
		ok(c, http.StatusAccepted, gin.H{"status": "skipped", "reason": "lock unavailable"})
		return
	}
	if !lease.Acquired {
		ok(c, http.StatusAccepted, gin.H{"status": "skipped", "reason": "lock not acquired"})
		return
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("cron", name).Msg("cron lock release failed")
		}
	}()

	started := time.Now().UTC()
	run, err := h.cron.Jobs.Run(ctx, name, services.RunOptions{Trigger: domain.TriggerCron})
	if err != nil {
		if errors.Is(err, services.ErrJobAlreadyRunning) {
			ok(c, http.StatusAccepted, gin.H{"status": "skipped", "reason": "job already running"})
			return
		}
		h.cron.record(ctx, c, name, started, time.Now().UTC(), err.Error())
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "cron task failed to start")
		return
	}

	errMsg := ""
	if run.Status == domain.JobFailed {
		errMsg = run.Message
	}
	finished := started
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	h.cron.record(ctx, c, name, run.StartedAt, finished, errMsg)

	ok(c, http.StatusOK, gin.H{"status": "ok", "run": run})
}

// CronStatus returns the run ledger for all known cron tasks, for the
// external staleness monitor.
func (h *Handlers) CronStatus(c *gin.Context) {
	runs, err := repo.ListCronRuns(c.Request.Context(), h.cron.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load cron status")
		return
	}
	ok(c, http.StatusOK, gin.H{"tasks": runs})
}

// record upserts the ledger row for one pass. Failures are logged and
// swallowed: the ledger is observability, not correctness.
func (r *CronRunner) record(ctx context.Context, c *gin.Context, name string, started, finished time.Time, errMsg string) {
	status := domain.CronSuccess
	if errMsg != "" {
		status = domain.CronError
	}
	err := repo.UpsertCronRun(ctx, r.DB, &domain.CronRun{
		CronName:     name,
		CronRunID:    uuid.NewString(),
		Status:       status,
		StartedAt:    started,
		FinishedAt:   finished,
		ErrorMessage: errMsg,
	})
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("cron", name).Msg("cron run ledger write failed")
	}
}
