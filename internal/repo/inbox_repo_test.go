package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bighog300/artpulse/internal/domain"
)

func newInboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.InboxNotification{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedInbox(t *testing.T, db *gorm.DB, userID, key string, createdAt time.Time) *domain.InboxNotification {
	t.Helper()
	n := &domain.InboxNotification{
		UserID:    userID,
		DedupeKey: key,
		Title:     "Your event is live",
		Body:      "The event has been published.",
		Href:      "/events/e1",
		CreatedAt: createdAt,
	}
	n, created, err := CreateInboxIfAbsent(context.Background(), db, n)
	if err != nil {
		t.Fatalf("seed inbox %s: %v", key, err)
	}
	if !created {
		t.Fatalf("seed inbox %s: expected fresh insert", key)
	}
	return n
}

func TestCreateInboxIfAbsent_Idempotent(t *testing.T) {
	db := newInboxDB(t)
	ctx := context.Background()

	first := seedInbox(t, db, "u1", "event:e1:published:u1", time.Now().UTC())

	second, created, err := CreateInboxIfAbsent(ctx, db, &domain.InboxNotification{
		UserID:    "u1",
		DedupeKey: "event:e1:published:u1",
		Title:     "different title on replay",
		Body:      "ignored",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on replay")
	}
	if second.ID != first.ID || second.Title != first.Title {
		t.Fatalf("replay did not return the original row")
	}
}

func TestListInbox_NewestFirstScopedToUser(t *testing.T) {
	db := newInboxDB(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	seedInbox(t, db, "u1", "k1", base)
	seedInbox(t, db, "u1", "k2", base.Add(time.Minute))
	seedInbox(t, db, "u1", "k3", base.Add(2*time.Minute))
	seedInbox(t, db, "u2", "k4", base.Add(3*time.Minute))

	rows, err := ListInbox(context.Background(), db, "u1", 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].DedupeKey != "k3" || rows[1].DedupeKey != "k2" {
		t.Fatalf("wrong order: %s, %s", rows[0].DedupeKey, rows[1].DedupeKey)
	}

	page2, err := ListInbox(context.Background(), db, "u1", 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].DedupeKey != "k1" {
		t.Fatalf("wrong second page: %+v", page2)
	}
}

func TestCountUnreadInbox(t *testing.T) {
	db := newInboxDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := seedInbox(t, db, "u1", "k1", now)
	seedInbox(t, db, "u1", "k2", now)
	seedInbox(t, db, "u2", "k3", now)

	if err := MarkInboxRead(ctx, db, "u1", a.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	n, err := CountUnreadInbox(ctx, db, "u1")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if n != 1 {
		t.Fatalf("unread = %d; want 1", n)
	}

	total, err := CountInbox(ctx, db, "u1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d; want 2", total)
	}
}

func TestMarkInboxRead_MonotonicAndOwnerScoped(t *testing.T) {
	db := newInboxDB(t)
	ctx := context.Background()
	n := seedInbox(t, db, "u1", "k1", time.Now().UTC())

	if err := MarkInboxRead(ctx, db, "u1", n.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}

	var got domain.InboxNotification
	if err := db.First(&got, "id = ?", n.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.InboxRead || got.ReadAt == nil {
		t.Fatalf("status=%q readAt=%v; want READ with timestamp", got.Status, got.ReadAt)
	}
	firstReadAt := *got.ReadAt

	// Re-marking succeeds silently and keeps the original timestamp.
	if err := MarkInboxRead(ctx, db, "u1", n.ID); err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if err := db.First(&got, "id = ?", n.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.ReadAt.Equal(firstReadAt) {
		t.Fatalf("read_at changed on re-mark: %v vs %v", got.ReadAt, firstReadAt)
	}

	// Another user's attempt looks exactly like a missing row.
	if err := MarkInboxRead(ctx, db, "u2", n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user mark: err=%v; want ErrNotFound", err)
	}
	if err := MarkInboxRead(ctx, db, "u1", "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id: err=%v; want ErrNotFound", err)
	}
}

func TestDeleteReadInboxBefore(t *testing.T) {
	db := newInboxDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldRead := seedInbox(t, db, "u1", "k-old-read", now.Add(-100*24*time.Hour))
	oldUnread := seedInbox(t, db, "u1", "k-old-unread", now.Add(-100*24*time.Hour))
	newRead := seedInbox(t, db, "u1", "k-new-read", now)
	if err := MarkInboxRead(ctx, db, "u1", oldRead.ID); err != nil {
		t.Fatalf("mark old: %v", err)
	}
	if err := MarkInboxRead(ctx, db, "u1", newRead.ID); err != nil {
		t.Fatalf("mark new: %v", err)
	}

	n, err := DeleteReadInboxBefore(ctx, db, now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d rows; want 1", n)
	}

	// Only the old READ row is gone.
	var remaining []domain.InboxNotification
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	keys := map[string]bool{}
	for _, r := range remaining {
		keys[r.DedupeKey] = true
	}
	if len(remaining) != 2 || !keys[oldUnread.DedupeKey] || !keys[newRead.DedupeKey] {
		t.Fatalf("unexpected remaining rows: %v", keys)
	}
}
