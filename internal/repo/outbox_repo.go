// Package repo implements the data persistence layer for the notification
// core, backed by GORM. This file provides repository functions for the
// OutboxMessage model: idempotent creation keyed by dedupe key and the
// conditional status transitions the worker relies on for single-owner
// claiming.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Conditional transitions report (false, nil) when the precondition did
//     not hold (the row was claimed or finished by someone else); that is an
//     expected outcome, not an error.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed: unique") ||
		strings.Contains(msg, "duplicate key")
}

// truncate caps s at n bytes. Stored error and message columns are bounded so
// a pathological upstream error cannot bloat the table.
func truncate(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// CreateOutboxIfAbsent inserts a PENDING outbox row keyed by msg.DedupeKey.
// If a row with that dedupe key already exists, the existing row is returned
// unchanged and created is false; repeated enqueues of the same logical
// event collapse into one record regardless of payload differences.
//
// The db handle may be transaction-bound; the duplicate re-read happens on
// the same handle so the pairing with an inbox upsert stays atomic.
func CreateOutboxIfAbsent(ctx context.Context, db *gorm.DB, msg *domain.OutboxMessage) (*domain.OutboxMessage, bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = domain.OutboxPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(msg).Error; err != nil {
		if isDuplicate(err) {
			existing, gerr := GetOutboxByDedupeKey(ctx, db, msg.DedupeKey)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return msg, true, nil
}

// GetOutboxByDedupeKey fetches the outbox row for a dedupe key, or ErrNotFound.
func GetOutboxByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	err := db.WithContext(ctx).Where("dedupe_key = ?", key).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListPendingOutbox returns up to limit PENDING rows, oldest first. FAILED and
// PROCESSING rows are excluded by construction, which is what keeps failed
// messages out of every future drain pass.
func ListPendingOutbox(ctx context.Context, db *gorm.DB, limit int) ([]domain.OutboxMessage, error) {
	var rows []domain.OutboxMessage
	err := db.WithContext(ctx).
		Where("status = ?", domain.OutboxPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ClaimOutbox attempts the optimistic PENDING → PROCESSING transition for id.
// It reports true only when this caller performed the transition; false means
// another worker pass already claimed the row. This conditional update is the
// sole concurrency-safety mechanism for delivery; no lock is taken per
// message.
func ClaimOutbox(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND status = ?", id, domain.OutboxPending).
		Update("status", domain.OutboxProcessing)
	return res.RowsAffected == 1, res.Error
}

// MarkOutboxSent attempts the PROCESSING → SENT transition for id, stamping
// SentAt. A false result guards against double-processing bugs: the row was
// not in PROCESSING when the update ran.
func MarkOutboxSent(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND status = ?", id, domain.OutboxProcessing).
		Updates(map[string]any{"status": domain.OutboxSent, "sent_at": now})
	return res.RowsAffected == 1, res.Error
}

// MarkOutboxFailed attempts the PROCESSING → FAILED transition for id,
// recording a truncated error message for operator inspection.
func MarkOutboxFailed(ctx context.Context, db *gorm.DB, id, errMsg string, maxLen int) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND status = ?", id, domain.OutboxProcessing).
		Updates(map[string]any{"status": domain.OutboxFailed, "error_message": truncate(errMsg, maxLen)})
	return res.RowsAffected == 1, res.Error
}

// ResetStaleProcessing returns PROCESSING rows whose last update is older
// than cutoff back to PENDING, so a worker that died mid-delivery does not
// strand its claims forever. Returns the number of rows requeued.
func ResetStaleProcessing(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("status = ? AND updated_at < ?", domain.OutboxProcessing, cutoff).
		Update("status", domain.OutboxPending)
	return res.RowsAffected, res.Error
}

// CountOutboxByStatus returns the row count per status, used by the worker
// gauges and the admin overview.
func CountOutboxByStatus(ctx context.Context, db *gorm.DB) (map[domain.OutboxStatus]int64, error) {
	var rows []struct {
		Status domain.OutboxStatus
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.OutboxStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
