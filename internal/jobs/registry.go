// Package jobs declares the built-in job definitions owned by the
// notification core. The registry is static: application code composes it at
// startup and hands it to the job runner; cron entry points and the admin API
// both trigger jobs by name from this set.
package jobs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/config"
	"github.com/bighog300/artpulse/internal/repo"
	"github.com/bighog300/artpulse/internal/services"
)

// Job names. Cron tasks reuse these as their cron names.
const (
	OutboxDrain     = "outbox-drain"
	OutboxReapStale = "outbox-reap-stale"
	InboxRetention  = "inbox-retention"
)

// Registry builds the default job registry wired to the outbox worker and the
// store.
func Registry(db *gorm.DB, worker *services.OutboxWorker, cfg config.Config) map[string]services.JobDefinition {
	return map[string]services.JobDefinition{
		OutboxDrain: {
			Name:        OutboxDrain,
			Description: "Claim pending outbox messages and attempt delivery.",
			Run: func(ctx context.Context, params map[string]any) (services.JobOutcome, error) {
				limit := intParam(params, "limit", cfg.Outbox.BatchSize)
				res, err := worker.DrainPending(ctx, limit)
				if err != nil {
					return services.JobOutcome{}, err
				}
				return services.JobOutcome{
					Message: fmt.Sprintf("sent %d, failed %d, skipped %d", res.Sent, res.Failed, res.Skipped),
					Metadata: map[string]any{
						"sent":    res.Sent,
						"failed":  res.Failed,
						"skipped": res.Skipped,
					},
				}, nil
			},
		},
		OutboxReapStale: {
			Name:        OutboxReapStale,
			Description: "Return outbox messages stuck in PROCESSING to PENDING.",
			Run: func(ctx context.Context, _ map[string]any) (services.JobOutcome, error) {
				n, err := worker.ReapStale(ctx, cfg.Outbox.ProcessingTimeout)
				if err != nil {
					return services.JobOutcome{}, err
				}
				return services.JobOutcome{
					Message:  fmt.Sprintf("requeued %d stale messages", n),
					Metadata: map[string]any{"requeued": n},
				}, nil
			},
		},
		InboxRetention: {
			Name:        InboxRetention,
			Description: "Delete read in-app notifications past the retention period.",
			Run: func(ctx context.Context, _ map[string]any) (services.JobOutcome, error) {
				cutoff := time.Now().UTC().Add(-cfg.Jobs.InboxRetention)
				n, err := repo.DeleteReadInboxBefore(ctx, db, cutoff)
				if err != nil {
					return services.JobOutcome{}, err
				}
				return services.JobOutcome{
					Message:  fmt.Sprintf("deleted %d read notifications", n),
					Metadata: map[string]any{"deleted": n},
				}, nil
			},
		},
	}
}

// intParam reads an integer job parameter, tolerating the float64 shape JSON
// decoding produces.
func intParam(params map[string]any, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}
