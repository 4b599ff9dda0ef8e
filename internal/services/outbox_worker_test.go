package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/bighog300/artpulse/internal/delivery"
	"github.com/bighog300/artpulse/internal/domain"
	"github.com/bighog300/artpulse/internal/repo"
)

// fakeSender records deliveries and fails on demand per dedupe key.
type fakeSender struct {
	sent    []delivery.Message
	failFor map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg delivery.Message) error {
	if err, ok := f.failFor[msg.DedupeKey]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func enqueueTest(t *testing.T, svc *NotificationService, eventID string) *domain.OutboxMessage {
	t.Helper()
	msg, err := svc.Enqueue(context.Background(), EnqueueParams{
		Payload:   domain.EventPublishedPayload{EventID: eventID, EventTitle: "Show", SourceName: "Gallery"},
		Recipient: "fan@example.com",
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", eventID, err)
	}
	return msg
}

func TestDrainPending_SendsAndMarks(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	sender := &fakeSender{}
	worker := &OutboxWorker{DB: db, Sender: sender, MaxErrorLen: 500}

	m1 := enqueueTest(t, svc, "e1")
	m2 := enqueueTest(t, svc, "e2")

	res, err := worker.DrainPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Sent != 2 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("result = %+v; want 2 sent", res)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sender saw %d messages", len(sender.sent))
	}

	for _, id := range []string{m1.ID, m2.ID} {
		var got domain.OutboxMessage
		if err := db.First(&got, "id = ?", id).Error; err != nil {
			t.Fatalf("reload %s: %v", id, err)
		}
		if got.Status != domain.OutboxSent || got.SentAt == nil {
			t.Fatalf("row %s: status=%q sentAt=%v", id, got.Status, got.SentAt)
		}
	}

	// Nothing left for a second pass.
	res, err = worker.DrainPending(context.Background(), 10)
	if err != nil || res.Sent+res.Failed+res.Skipped != 0 {
		t.Fatalf("second pass: res=%+v err=%v", res, err)
	}
}

func TestDrainPending_FailureIsTerminalForTheRow(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	sender := &fakeSender{failFor: map[string]error{
		"event:e1:published": errors.New("smtp 550 mailbox unavailable"),
	}}
	worker := &OutboxWorker{DB: db, Sender: sender, MaxErrorLen: 500}

	bad := enqueueTest(t, svc, "e1")
	enqueueTest(t, svc, "e2")

	res, err := worker.DrainPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v; want 1 sent, 1 failed", res)
	}

	var got domain.OutboxMessage
	if err := db.First(&got, "id = ?", bad.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.OutboxFailed {
		t.Fatalf("status = %q; want FAILED", got.Status)
	}
	if got.ErrorMessage != "smtp 550 mailbox unavailable" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}

	// One failure never aborts the batch, and a FAILED row is not retried.
	res, err = worker.DrainPending(context.Background(), 10)
	if err != nil || res.Sent+res.Failed+res.Skipped != 0 {
		t.Fatalf("second pass: res=%+v err=%v", res, err)
	}
}

// stealingSender claims a target row out from under the drain pass while
// delivering another one, reproducing an overlapping worker deterministically.
type stealingSender struct {
	db      *gorm.DB
	stealID string
	stolen  bool
	inner   fakeSender
}

func (s *stealingSender) Send(ctx context.Context, msg delivery.Message) error {
	if !s.stolen {
		s.stolen = true
		if ok, err := repo.ClaimOutbox(ctx, s.db, s.stealID); err != nil || !ok {
			return errors.New("test: failed to steal claim")
		}
	}
	return s.inner.Send(ctx, msg)
}

func TestDrainPending_ConcurrentClaimCountsAsSkipped(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	ctx := context.Background()

	first := enqueueTest(t, svc, "e1")
	second := enqueueTest(t, svc, "e2")
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := db.Model(&domain.OutboxMessage{}).Where("id = ?", first.ID).
		UpdateColumn("created_at", base).Error; err != nil {
		t.Fatalf("order rows: %v", err)
	}
	if err := db.Model(&domain.OutboxMessage{}).Where("id = ?", second.ID).
		UpdateColumn("created_at", base.Add(time.Minute)).Error; err != nil {
		t.Fatalf("order rows: %v", err)
	}

	sender := &stealingSender{db: db, stealID: second.ID}
	worker := &OutboxWorker{DB: db, Sender: sender, MaxErrorLen: 500}

	res, err := worker.DrainPending(ctx, 10)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Sent != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v; want 1 sent, 1 skipped", res)
	}

	var got domain.OutboxMessage
	if err := db.First(&got, "id = ?", second.ID).Error; err != nil {
		t.Fatalf("reload stolen: %v", err)
	}
	if got.Status != domain.OutboxProcessing {
		t.Fatalf("stolen row status = %q; want PROCESSING (owned elsewhere)", got.Status)
	}
}

func TestDrainPending_RespectsLimitOldestFirst(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	sender := &fakeSender{}
	worker := &OutboxWorker{DB: db, Sender: sender, MaxErrorLen: 500}

	old := enqueueTest(t, svc, "e-old")
	newer := enqueueTest(t, svc, "e-new")
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := db.Model(&domain.OutboxMessage{}).Where("id = ?", old.ID).
		UpdateColumn("created_at", base).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := db.Model(&domain.OutboxMessage{}).Where("id = ?", newer.ID).
		UpdateColumn("created_at", base.Add(time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	res, err := worker.DrainPending(context.Background(), 1)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Sent != 1 {
		t.Fatalf("result = %+v; want 1 sent", res)
	}
	if len(sender.sent) != 1 || sender.sent[0].ID != old.ID {
		t.Fatalf("wrong row drained first")
	}
}

func TestReapStale_RequeuesForNextPass(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	sender := &fakeSender{}
	worker := &OutboxWorker{DB: db, Sender: sender, MaxErrorLen: 500}
	ctx := context.Background()

	msg := enqueueTest(t, svc, "e1")
	if ok, err := repo.ClaimOutbox(ctx, db, msg.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	// Age the claim past the processing timeout.
	if err := db.Model(&domain.OutboxMessage{}).Where("id = ?", msg.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age: %v", err)
	}

	n, err := worker.ReapStale(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d; want 1", n)
	}

	res, err := worker.DrainPending(ctx, 10)
	if err != nil || res.Sent != 1 {
		t.Fatalf("post-reap drain: res=%+v err=%v", res, err)
	}
}

func TestBacklog(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	worker := &OutboxWorker{DB: db, Sender: &fakeSender{}, MaxErrorLen: 500}
	ctx := context.Background()

	enqueueTest(t, svc, "e1")
	enqueueTest(t, svc, "e2")

	counts, err := worker.Backlog(ctx)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if counts[domain.OutboxPending] != 2 {
		t.Fatalf("pending = %d; want 2", counts[domain.OutboxPending])
	}
}
