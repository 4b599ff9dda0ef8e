// Package services implements the business logic of the notification core:
// idempotent enqueue, outbox draining, and named-job execution. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Job runner errors.
var (
	// ErrUnknownJob is returned when a job name does not resolve against the
	// static registry. This is a caller error, not retryable.
	ErrUnknownJob = errors.New("unknown job name")

	// ErrJobAlreadyRunning is returned when a run of the same job name is
	// still in the running state within the lookback window. Retryable once
	// the first run finishes or the window elapses.
	ErrJobAlreadyRunning = errors.New("job already running")
)

// Notification errors.
var (
	// ErrNotificationNotFound indicates that the requested inbox notification
	// does not exist or is not accessible to the current user.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrEmptyRecipient is returned when an enqueue request has no recipient.
	ErrEmptyRecipient = errors.New("recipient is empty")

	// ErrNilPayload is returned when an enqueue request carries no payload.
	ErrNilPayload = errors.New("notification payload is nil")
)
