// Package services – JobService
//
// This file implements the named-job runner: a static registry of job
// definitions invoked by admins or cron, a single-flight gate per job name
// based on a running-row lookback query, and a persisted run ledger. A job
// body failure is represented as data on the JobRun (status, truncated
// message), never as a returned error; only the two pre-execution guards
// (unknown name, already running) surface to the caller.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/domain"
	"github.com/bighog300/artpulse/internal/repo"
)

// jobRuns counts finished job runs by name and outcome.
var jobRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_runs_total",
		Help: "Finished job runs, by job name and status.",
	},
	[]string{"name", "status"},
)

func init() {
	prometheus.MustRegister(jobRuns)
}

// JobOutcome is what a job body reports on success.
type JobOutcome struct {
	// Message is a short human-readable summary, stored truncated.
	Message string
	// Metadata is merged with timing information into the run's metadata JSON.
	Metadata map[string]any
}

// JobDefinition is one entry of the static job registry.
type JobDefinition struct {
	Name        string
	Description string
	// Run executes the job body. Params come from the trigger (admin request
	// body or cron defaults) and may be nil.
	Run func(ctx context.Context, params map[string]any) (JobOutcome, error)
}

// RunOptions attributes and parameterizes a job run.
type RunOptions struct {
	Trigger    domain.JobTrigger
	ActorEmail string
	Params     map[string]any
}

// JobService resolves names against the registry and executes jobs with
// single-flight protection and a persisted ledger.
type JobService struct {
	DB       *gorm.DB
	Registry map[string]JobDefinition
	// Lookback bounds the single-flight window: a running row older than this
	// no longer blocks new runs (a hung job should not wedge its name forever).
	Lookback time.Duration
	// MaxMessageLen bounds stored messages and error strings.
	MaxMessageLen int
}

// Run executes the named job and returns its completed ledger row.
//
// Guard failures are returned as errors: ErrUnknownJob when the name does not
// resolve, ErrJobAlreadyRunning when a running row for the name exists within
// the lookback window (checked without creating a new record). Past the
// guards, Run always returns the final row; the job body's own failure is
// recorded on it, not propagated.
func (s *JobService) Run(ctx context.Context, name string, opts RunOptions) (*domain.JobRun, error) {
	def, ok := s.Registry[name]
	if !ok {
		return nil, ErrUnknownJob
	}
	if opts.Trigger == "" {
		opts.Trigger = domain.TriggerSystem
	}

	since := time.Now().UTC().Add(-s.Lookback)
	if _, err := repo.FindRunningJob(ctx, s.DB, name, since); err == nil {
		return nil, ErrJobAlreadyRunning
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	run, err := repo.CreateJobRun(ctx, s.DB, name, opts.Trigger, opts.ActorEmail)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	outcome, jobErr := s.execute(ctx, def, opts.Params)
	elapsed := time.Since(started)

	status := domain.JobSucceeded
	message := outcome.Message
	meta := map[string]any{"duration_ms": elapsed.Milliseconds()}
	for k, v := range outcome.Metadata {
		meta[k] = v
	}
	if jobErr != nil {
		status = domain.JobFailed
		message = jobErr.Error()
		meta["error_type"] = fmt.Sprintf("%T", jobErr)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}
	if err := repo.FinishJobRun(ctx, s.DB, run.ID, status, truncateMessage(message, s.MaxMessageLen), string(metaJSON)); err != nil {
		return nil, err
	}
	jobRuns.WithLabelValues(name, string(status)).Inc()

	return repo.GetJobRun(ctx, s.DB, run.ID)
}

// execute invokes the job body, converting a panic into an ordinary failure
// so a crashing job still finishes its ledger row.
func (s *JobService) execute(ctx context.Context, def JobDefinition, params map[string]any) (outcome JobOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return def.Run(ctx, params)
}

// Definitions returns the registry entries in stable (map-iteration-free)
// order for the admin listing.
func (s *JobService) Definitions() []JobDefinition {
	names := make([]string, 0, len(s.Registry))
	for n := range s.Registry {
		names = append(names, n)
	}
	sort.Strings(names)
	defs := make([]JobDefinition, 0, len(names))
	for _, n := range names {
		defs = append(defs, s.Registry[n])
	}
	return defs
}

// History returns recent runs for one job name, or across all jobs when name
// is empty. Out-of-range limits fall back to 20.
func (s *JobService) History(ctx context.Context, name string, limit int) ([]domain.JobRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return repo.ListJobRuns(ctx, s.DB, name, limit)
}

// truncateMessage caps s at n bytes (n <= 0 leaves s untouched).
func truncateMessage(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
