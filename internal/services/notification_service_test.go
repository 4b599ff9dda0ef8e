package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bighog300/artpulse/internal/domain"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.OutboxMessage{},
		&domain.InboxNotification{},
		&domain.CronRun{},
		&domain.JobRun{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestEnqueue_CreatesOutboxAndInboxPair(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	ctx := context.Background()

	msg, err := svc.Enqueue(ctx, EnqueueParams{
		Payload:   domain.EventPublishedPayload{EventID: "e1", EventTitle: "Vernissage", SourceName: "Gallery North"},
		Recipient: "fan@example.com",
		InApp:     &InAppTarget{UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if msg.Status != domain.OutboxPending {
		t.Fatalf("outbox status = %q; want PENDING", msg.Status)
	}
	if msg.DedupeKey != "event:e1:published" {
		t.Fatalf("dedupe key = %q; want rendered default", msg.DedupeKey)
	}
	if msg.Kind != string(domain.KindEventPublished) {
		t.Fatalf("kind = %q", msg.Kind)
	}

	var inbox domain.InboxNotification
	if err := db.First(&inbox, "dedupe_key = ?", msg.DedupeKey).Error; err != nil {
		t.Fatalf("paired inbox row missing: %v", err)
	}
	if inbox.UserID != "u1" || inbox.Status != domain.InboxUnread {
		t.Fatalf("unexpected inbox row: %+v", inbox)
	}
	if inbox.Title == "" || inbox.Href != "/events/e1" {
		t.Fatalf("inbox content not rendered: %+v", inbox)
	}
}

func TestEnqueue_ReplayIsIdempotent(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	ctx := context.Background()

	params := EnqueueParams{
		Payload:   domain.SubmissionApprovedPayload{SubmissionID: "s1", EventTitle: "Open Studio Night"},
		Recipient: "artist@example.com",
		InApp:     &InAppTarget{UserID: "u1"},
	}

	first, err := svc.Enqueue(ctx, params)
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	second, err := svc.Enqueue(ctx, params)
	if err != nil {
		t.Fatalf("replay enqueue: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new outbox row")
	}

	var outboxN, inboxN int64
	db.Model(&domain.OutboxMessage{}).Count(&outboxN)
	db.Model(&domain.InboxNotification{}).Count(&inboxN)
	if outboxN != 1 || inboxN != 1 {
		t.Fatalf("rows after replay: outbox=%d inbox=%d; want 1/1", outboxN, inboxN)
	}
}

func TestEnqueue_ExplicitDedupeKeyWins(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}

	msg, err := svc.Enqueue(context.Background(), EnqueueParams{
		Payload:   domain.ArtistInvitePayload{InviteID: "i1", ArtistName: "Mara Voss"},
		Recipient: "mara@example.com",
		DedupeKey: "invite:i1:resend-2",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if msg.DedupeKey != "invite:i1:resend-2" {
		t.Fatalf("dedupe key = %q; want caller override", msg.DedupeKey)
	}
}

func TestEnqueue_WithoutInAppSkipsInbox(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}

	if _, err := svc.Enqueue(context.Background(), EnqueueParams{
		Payload:   domain.VenueClaimApprovedPayload{VenueID: "v1", VenueName: "The Depot"},
		Recipient: "owner@example.com",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var inboxN int64
	db.Model(&domain.InboxNotification{}).Count(&inboxN)
	if inboxN != 0 {
		t.Fatalf("inbox rows = %d; want 0", inboxN)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	svc := &NotificationService{DB: newServiceDB(t)}
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, EnqueueParams{Recipient: "x@example.com"}); !errors.Is(err, ErrNilPayload) {
		t.Fatalf("nil payload: err = %v", err)
	}
	if _, err := svc.Enqueue(ctx, EnqueueParams{
		Payload:   domain.ArtistInvitePayload{InviteID: "i1", ArtistName: "A"},
		Recipient: "   ",
	}); !errors.Is(err, ErrEmptyRecipient) {
		t.Fatalf("blank recipient: err = %v", err)
	}
}

func TestListInboxAndUnreadCount(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Enqueue(ctx, EnqueueParams{
			Payload:   domain.EventPublishedPayload{EventID: fmt.Sprintf("e%d", i), EventTitle: "Show", SourceName: "Gallery"},
			Recipient: "fan@example.com",
			InApp:     &InAppTarget{UserID: "u1"},
		}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	page, err := svc.ListInbox(ctx, "u1", 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 {
		t.Fatalf("total=%d items=%d; want 3/2", page.Total, len(page.Items))
	}

	n, err := svc.UnreadCount(ctx, "u1")
	if err != nil || n != 3 {
		t.Fatalf("unread = %d err=%v; want 3", n, err)
	}

	if err := svc.MarkRead(ctx, "u1", page.Items[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ = svc.UnreadCount(ctx, "u1"); n != 2 {
		t.Fatalf("unread after mark = %d; want 2", n)
	}
}

func TestMarkRead_WrongUserMapsToNotFound(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	ctx := context.Background()

	msg, err := svc.Enqueue(ctx, EnqueueParams{
		Payload:   domain.EventPublishedPayload{EventID: "e1", EventTitle: "Show", SourceName: "Gallery"},
		Recipient: "fan@example.com",
		InApp:     &InAppTarget{UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var inbox domain.InboxNotification
	if err := db.First(&inbox, "dedupe_key = ?", msg.DedupeKey).Error; err != nil {
		t.Fatalf("load inbox: %v", err)
	}

	if err := svc.MarkRead(ctx, "u2", inbox.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("cross-user mark: err = %v; want ErrNotificationNotFound", err)
	}
}
