// Package repo implements the data persistence layer for the notification
// core, backed by GORM. This file provides repository functions for the
// JobRun ledger consumed by the job runner's single-flight gate.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/domain"
)

// FindRunningJob returns the most recent running JobRun for name started at
// or after since, or ErrNotFound. This query is the single-flight gate: its
// time bound keeps a run that hung past the lookback window from blocking the
// job name forever.
func FindRunningJob(ctx context.Context, db *gorm.DB, name string, since time.Time) (*domain.JobRun, error) {
	var run domain.JobRun
	err := db.WithContext(ctx).
		Where("name = ? AND status = ? AND started_at >= ?", name, domain.JobRunning, since).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateJobRun inserts a new running JobRun row stamped with the current time.
func CreateJobRun(ctx context.Context, db *gorm.DB, name string, trigger domain.JobTrigger, actorEmail string) (*domain.JobRun, error) {
	run := &domain.JobRun{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     domain.JobRunning,
		Trigger:    trigger,
		ActorEmail: actorEmail,
		StartedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// FinishJobRun marks run id as succeeded or failed, stamping FinishedAt and
// storing the (already truncated) message and metadata. The update is
// conditional on the row still being in the running state so a duplicate
// finish cannot clobber a recorded outcome.
func FinishJobRun(ctx context.Context, db *gorm.DB, id string, status domain.JobStatus, message, metadata string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.JobRun{}).
		Where("id = ? AND status = ?", id, domain.JobRunning).
		Updates(map[string]any{
			"status":      status,
			"finished_at": now,
			"message":     message,
			"metadata":    metadata,
		}).Error
}

// GetJobRun fetches a run by id, or ErrNotFound.
func GetJobRun(ctx context.Context, db *gorm.DB, id string) (*domain.JobRun, error) {
	var run domain.JobRun
	if err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListJobRuns returns the most recent runs for a name, newest first. An empty
// name lists runs across all jobs.
func ListJobRuns(ctx context.Context, db *gorm.DB, name string, limit int) ([]domain.JobRun, error) {
	q := db.WithContext(ctx).Model(&domain.JobRun{})
	if name != "" {
		q = q.Where("name = ?", name)
	}
	var runs []domain.JobRun
	err := q.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
