// Package services – NotificationService
//
// This file implements the producer side of the outbox pattern and the
// in-app inbox read model. Enqueue is idempotent by dedupe key: re-delivering
// the same domain event never produces duplicate notifications, and when an
// in-app descriptor is supplied the outbox row and its paired inbox row are
// written in one transaction so a caller never observes one without the
// other.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/domain"
	"github.com/bighog300/artpulse/internal/repo"
)

// InAppTarget asks Enqueue to create the paired in-app inbox row.
type InAppTarget struct {
	// UserID owns the inbox row.
	UserID string
	// DedupeKey optionally keys the inbox row separately; it defaults to the
	// outbox dedupe key.
	DedupeKey string
}

// EnqueueParams describes one notification to enqueue.
type EnqueueParams struct {
	// Payload selects the notification kind and carries its data. Rendering
	// is total over the declared payload types.
	Payload domain.NotificationPayload
	// Recipient is the external delivery address (email, webhook target id).
	Recipient string
	// DedupeKey optionally overrides the rendered default. It must be stable
	// across retries of the same logical event.
	DedupeKey string
	// InApp, when non-nil, requests the paired inbox row.
	InApp *InAppTarget
}

// NotificationService implements the use-cases around producing and reading
// notifications. The service is context-aware and opens its own transaction
// per enqueue.
type NotificationService struct {
	// DB is the database handle used for all notification operations.
	DB *gorm.DB
}

// Enqueue records one unit of external notification work, plus the optional
// in-app inbox row, idempotently.
//
// Semantics:
//   - The outbox upsert is keyed by dedupe key: when a record with that key
//     already exists it is returned unchanged, payload differences included.
//     The caller can detect replays by comparing IDs or payloads if needed.
//   - With InApp set, the inbox upsert shares the transaction; after a
//     successful return both rows exist (or both pre-existed).
//   - Template resolution happens before any write; an unrecognized payload
//     type panics (programming error, covered by domain tests).
func (s *NotificationService) Enqueue(ctx context.Context, p EnqueueParams) (*domain.OutboxMessage, error) {
	if p.Payload == nil {
		return nil, ErrNilPayload
	}
	if strings.TrimSpace(p.Recipient) == "" {
		return nil, ErrEmptyRecipient
	}

	content := domain.Render(p.Payload)
	dedupe := p.DedupeKey
	if dedupe == "" {
		dedupe = content.DedupeKey
	}

	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, err
	}

	var result *domain.OutboxMessage
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg := &domain.OutboxMessage{
			Kind:      string(p.Payload.Kind()),
			Recipient: p.Recipient,
			Payload:   string(raw),
			DedupeKey: dedupe,
		}
		stored, _, err := repo.CreateOutboxIfAbsent(ctx, tx, msg)
		if err != nil {
			return err
		}
		result = stored

		if p.InApp != nil {
			inboxKey := p.InApp.DedupeKey
			if inboxKey == "" {
				inboxKey = dedupe
			}
			n := &domain.InboxNotification{
				UserID:    p.InApp.UserID,
				DedupeKey: inboxKey,
				Title:     content.Title,
				Body:      content.Body,
				Href:      content.Href,
			}
			if _, _, err := repo.CreateInboxIfAbsent(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// InboxPage is one page of a user's notifications.
type InboxPage struct {
	Items []domain.InboxNotification `json:"items"`
	Total int64                      `json:"total"`
}

// ListInbox returns a page of userID's notifications, newest first.
func (s *NotificationService) ListInbox(ctx context.Context, userID string, offset, limit int) (*InboxPage, error) {
	total, err := repo.CountInbox(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	items, err := repo.ListInbox(ctx, s.DB, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &InboxPage{Items: items, Total: total}, nil
}

// UnreadCount returns userID's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return repo.CountUnreadInbox(ctx, s.DB, userID)
}

// MarkRead marks notification id as read on behalf of userID. Marking an
// already-read row is a no-op; rows belonging to other users are reported as
// ErrNotificationNotFound rather than leaking their existence.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	err := repo.MarkInboxRead(ctx, s.DB, userID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}
