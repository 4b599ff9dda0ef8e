// Package services – OutboxWorker
//
// This file implements the consumer side of the outbox pattern. A drain pass
// is a single bounded sweep over PENDING rows, intended to be invoked
// repeatedly by an external scheduler (a cron entry point or the outbox-drain
// job), never as a long-running loop. Concurrency safety across overlapping
// passes comes entirely from conditional updates in the store: the optimistic
// PENDING → PROCESSING claim admits exactly one owner per row.
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/delivery"
	"github.com/bighog300/artpulse/internal/domain"
	"github.com/bighog300/artpulse/internal/repo"
)

var (
	// outboxProcessed counts drain outcomes by result (sent/failed/skipped).
	outboxProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_messages_processed_total",
			Help: "Outbox messages processed by drain passes, by outcome.",
		},
		[]string{"outcome"},
	)

	// outboxReaped counts stale PROCESSING rows returned to PENDING.
	outboxReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_messages_reaped_total",
			Help: "Stale PROCESSING outbox rows returned to PENDING.",
		},
	)
)

func init() {
	prometheus.MustRegister(outboxProcessed, outboxReaped)
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// OutboxWorker claims pending outbox rows and attempts delivery.
type OutboxWorker struct {
	// DB is the backing store holding outbox rows.
	DB *gorm.DB
	// Sender performs the delivery side effect. Failures are recorded on the
	// row, never retried here.
	Sender delivery.Sender
	// MaxErrorLen bounds the stored error message.
	MaxErrorLen int
}

// DrainPending processes up to limit PENDING rows in creation order.
//
// Per row:
//  1. Optimistic claim PENDING → PROCESSING; zero rows affected means a
//     concurrent pass owns it; counted as skipped, no error.
//  2. Deliver. On success, conditional PROCESSING → SENT; a zero-row result
//     is also counted as skipped (double-processing guard).
//  3. On delivery failure, conditional PROCESSING → FAILED with a truncated
//     error message. FAILED rows are excluded from future passes by the
//     PENDING-only selection and require operator intervention (or the
//     reaper, for rows stranded in PROCESSING).
//
// A single bad message never aborts the batch; store errors on one row are
// recorded in the skip count and the pass continues. FIFO holds within this
// call only; there is no ordering guarantee across concurrent passes.
func (w *OutboxWorker) DrainPending(ctx context.Context, limit int) (DrainResult, error) {
	var res DrainResult

	rows, err := repo.ListPendingOutbox(ctx, w.DB, limit)
	if err != nil {
		return res, err
	}

	for i := range rows {
		row := &rows[i]

		claimed, err := repo.ClaimOutbox(ctx, w.DB, row.ID)
		if err != nil || !claimed {
			res.Skipped++
			outboxProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		sendErr := w.Sender.Send(ctx, delivery.Message{
			ID:        row.ID,
			Kind:      row.Kind,
			Recipient: row.Recipient,
			Payload:   json.RawMessage(row.Payload),
			DedupeKey: row.DedupeKey,
		})
		if sendErr != nil {
			if _, err := repo.MarkOutboxFailed(ctx, w.DB, row.ID, sendErr.Error(), w.MaxErrorLen); err != nil {
				res.Skipped++
				outboxProcessed.WithLabelValues("skipped").Inc()
				continue
			}
			res.Failed++
			outboxProcessed.WithLabelValues("failed").Inc()
			continue
		}

		marked, err := repo.MarkOutboxSent(ctx, w.DB, row.ID)
		if err != nil || !marked {
			// Should not occur with single-owner claims; guards against
			// double-processing bugs.
			res.Skipped++
			outboxProcessed.WithLabelValues("skipped").Inc()
			continue
		}
		res.Sent++
		outboxProcessed.WithLabelValues("sent").Inc()
	}

	return res, nil
}

// ReapStale returns PROCESSING rows older than timeout to PENDING so a worker
// that died mid-delivery does not strand its claims. Reaped rows become
// eligible for the next drain pass, so a delivery that already happened can
// repeat: the reaper trades exactly-once for no stranded work.
func (w *OutboxWorker) ReapStale(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	n, err := repo.ResetStaleProcessing(ctx, w.DB, cutoff)
	if err != nil {
		return 0, err
	}
	outboxReaped.Add(float64(n))
	return n, nil
}

// Backlog reports outbox row counts by status for the admin overview.
func (w *OutboxWorker) Backlog(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	return repo.CountOutboxByStatus(ctx, w.DB)
}
