// Package repo implements the data persistence layer for the notification
// core, backed by GORM. This file provides repository functions for the
// InboxNotification model: dedupe-keyed creation, owner-scoped reads, and the
// monotonic mark-read transition.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/domain"
)

// CreateInboxIfAbsent inserts an UNREAD inbox row keyed by n.DedupeKey. If a
// row with that dedupe key already exists it is returned unchanged and
// created is false, mirroring the outbox idempotency contract.
func CreateInboxIfAbsent(ctx context.Context, db *gorm.DB, n *domain.InboxNotification) (*domain.InboxNotification, bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.InboxUnread
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		if isDuplicate(err) {
			var existing domain.InboxNotification
			if gerr := db.WithContext(ctx).Where("dedupe_key = ?", n.DedupeKey).First(&existing).Error; gerr != nil {
				return nil, false, gerr
			}
			return &existing, false, nil
		}
		return nil, false, err
	}
	return n, true, nil
}

// ListInbox returns a page of the user's notifications, newest first.
func ListInbox(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.InboxNotification, error) {
	var rows []domain.InboxNotification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountInbox returns the user's total notification count (pagination support).
func CountInbox(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.InboxNotification{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// CountUnreadInbox returns the user's unread notification count.
func CountUnreadInbox(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.InboxNotification{}).
		Where("user_id = ? AND status = ?", userID, domain.InboxUnread).
		Count(&n).Error
	return n, err
}

// MarkInboxRead transitions the user's notification id to READ. The update is
// scoped to the owning user, and read state is monotonic: marking an already
// READ row is a silent no-op, and nothing ever reverts READ to UNREAD.
// Returns ErrNotFound when the row does not exist or belongs to another user.
func MarkInboxRead(ctx context.Context, db *gorm.DB, userID, id string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.InboxNotification{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, domain.InboxUnread).
		Updates(map[string]any{"status": domain.InboxRead, "read_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	// Zero rows: either already read (fine) or not this user's row.
	var n int64
	if err := db.WithContext(ctx).
		Model(&domain.InboxNotification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReadInboxBefore removes READ rows created before cutoff. This is the
// bulk retention scan executed under the cron lock.
func DeleteReadInboxBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.InboxRead, cutoff).
		Delete(&domain.InboxNotification{})
	return res.RowsAffected, res.Error
}
