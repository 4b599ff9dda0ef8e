// Package repo implements the data persistence layer for the notification
// core, backed by GORM. This file provides repository functions for the
// CronRun ledger: one replace-by-name row per cron task, feeding the external
// staleness monitor.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bighog300/artpulse/internal/domain"
)

// UpsertCronRun records the latest pass of a cron task, replacing any earlier
// row for the same task name. Callers treat failures here as best-effort
// observability: a ledger write error never fails the task itself.
func UpsertCronRun(ctx context.Context, db *gorm.DB, run *domain.CronRun) error {
	run.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cron_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cron_run_id", "status", "started_at", "finished_at", "error_message", "updated_at",
			}),
		}).
		Create(run).Error
}

// GetCronRun fetches the latest recorded pass for a task name, or ErrNotFound.
func GetCronRun(ctx context.Context, db *gorm.DB, name string) (*domain.CronRun, error) {
	var run domain.CronRun
	if err := db.WithContext(ctx).Where("cron_name = ?", name).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListCronRuns returns the ledger for all known cron tasks, ordered by name.
func ListCronRuns(ctx context.Context, db *gorm.DB) ([]domain.CronRun, error) {
	var runs []domain.CronRun
	err := db.WithContext(ctx).Order("cron_name ASC").Find(&runs).Error
	return runs, err
}
