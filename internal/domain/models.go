// Package domain defines the persistence models for the notification and
// cron-coordination core: outbox messages, in-app inbox notifications, cron
// run ledger entries, and job runs. These types are mapped with GORM and
// shared across the repository and service layers.
package domain

import "time"

// OutboxStatus is the lifecycle state of an OutboxMessage.
type OutboxStatus string

const (
	// OutboxPending marks a message waiting to be claimed by a worker pass.
	OutboxPending OutboxStatus = "PENDING"
	// OutboxProcessing marks a message claimed by exactly one worker pass.
	OutboxProcessing OutboxStatus = "PROCESSING"
	// OutboxSent marks a successfully delivered message (terminal).
	OutboxSent OutboxStatus = "SENT"
	// OutboxFailed marks a message whose delivery failed (terminal; requires
	// operator intervention, never reselected by the worker).
	OutboxFailed OutboxStatus = "FAILED"
)

// InboxStatus is the read state of an InboxNotification.
type InboxStatus string

const (
	// InboxUnread marks a notification not yet seen by its owner.
	InboxUnread InboxStatus = "UNREAD"
	// InboxRead marks a seen notification. Read state is monotonic: a READ
	// row never reverts to UNREAD.
	InboxRead InboxStatus = "READ"
)

// JobStatus is the lifecycle state of a JobRun.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobTrigger records what initiated a job run.
type JobTrigger string

const (
	TriggerCron   JobTrigger = "cron"
	TriggerAdmin  JobTrigger = "admin"
	TriggerSystem JobTrigger = "system"
)

// CronStatus is the outcome recorded for a cron task pass.
type CronStatus string

const (
	CronSuccess CronStatus = "success"
	CronError   CronStatus = "error"
)

// OutboxMessage is one durable unit of external notification work, produced
// idempotently by the application and consumed by the outbox worker.
//
// Invariants:
//   - DedupeKey is globally unique; a second enqueue with the same key is a
//     no-op returning this record.
//   - Status transitions PENDING → PROCESSING → {SENT | FAILED} via
//     conditional updates only; there is no automatic return to PENDING
//     except through the stale-claim reaper.
type OutboxMessage struct {
	ID           string       `json:"id"            gorm:"type:char(36);primaryKey"`
	Kind         string       `json:"kind"          gorm:"type:varchar(64);not null"`
	Recipient    string       `json:"recipient"     gorm:"type:varchar(255);not null"`
	Payload      string       `json:"payload"       gorm:"type:text;not null"` // JSON, opaque to the worker
	DedupeKey    string       `json:"dedupe_key"    gorm:"type:varchar(255);not null;uniqueIndex:ux_outbox_dedupe"`
	Status       OutboxStatus `json:"status"        gorm:"type:varchar(16);not null;default:'PENDING';index:idx_outbox_status_created,priority:1"`
	ErrorMessage string       `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at"    gorm:"index:idx_outbox_status_created,priority:2"`
	UpdatedAt    time.Time    `json:"updated_at"`
	SentAt       *time.Time   `json:"sent_at,omitempty"`
}

// TableName returns the database table name for OutboxMessage.
func (OutboxMessage) TableName() string { return "outbox_messages" }

// InboxNotification is the optional in-app counterpart of an outbox message,
// shown in the recipient's notification tray. At most one row exists per
// dedupe key; mark-read is scoped to the owning user.
type InboxNotification struct {
	ID        string      `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string      `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_inbox_user_created,priority:1"`
	DedupeKey string      `json:"-"          gorm:"type:varchar(255);not null;uniqueIndex:ux_inbox_dedupe"`
	Title     string      `json:"title"      gorm:"type:varchar(255);not null"`
	Body      string      `json:"body"       gorm:"type:text;not null"`
	Href      string      `json:"href"       gorm:"type:varchar(512)"`
	Status    InboxStatus `json:"status"     gorm:"type:varchar(8);not null;default:'UNREAD';index"`
	CreatedAt time.Time   `json:"created_at" gorm:"index:idx_inbox_user_created,priority:2"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
}

// TableName returns the database table name for InboxNotification.
func (InboxNotification) TableName() string { return "inbox_notifications" }

// CronRun is the latest recorded pass of a named cron task. Rows are keyed by
// task name (replace-by-name) and exist purely for staleness monitoring; the
// ledger is never consulted for correctness.
type CronRun struct {
	CronName     string     `json:"cron_name"     gorm:"type:varchar(64);primaryKey"`
	CronRunID    string     `json:"cron_run_id"   gorm:"type:char(36);not null"`
	Status       CronStatus `json:"status"        gorm:"type:varchar(8);not null"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for CronRun.
func (CronRun) TableName() string { return "cron_runs" }

// JobRun is a persisted execution of a named job.
//
// Invariant: while a row with Status == JobRunning and StartedAt within the
// configured lookback window exists for a name, no second run of that name
// may start.
type JobRun struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	Name       string     `json:"name"        gorm:"type:varchar(64);not null;index:idx_jobrun_single_flight,priority:1"`
	Status     JobStatus  `json:"status"      gorm:"type:varchar(16);not null;index:idx_jobrun_single_flight,priority:2"`
	Trigger    JobTrigger `json:"trigger"     gorm:"type:varchar(16);not null"`
	ActorEmail string     `json:"actor_email,omitempty" gorm:"type:varchar(255)"`
	StartedAt  time.Time  `json:"started_at"  gorm:"index:idx_jobrun_single_flight,priority:3"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Message    string     `json:"message,omitempty"  gorm:"type:text"`
	Metadata   string     `json:"metadata,omitempty" gorm:"type:text"` // JSON
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for JobRun.
func (JobRun) TableName() string { return "job_runs" }
