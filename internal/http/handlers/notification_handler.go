// In-app notification HTTP handlers.
//
// This file exposes the REST endpoints for the notification inbox:
//   - GET  /notifications               (paged list, own rows only)
//   - GET  /notifications/unread-count
//   - POST /notifications/{id}/read     (monotonic mark-read)
//
// Handlers are transport-thin: they validate input, delegate to the
// notification service, and translate service errors into HTTP results.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bighog300/artpulse/internal/http/middleware"
	"github.com/bighog300/artpulse/internal/services"
	"github.com/bighog300/artpulse/internal/utils"
)

// Handlers bundles the services the HTTP layer dispatches to.
type Handlers struct {
	notifSvc *services.NotificationService
	jobSvc   *services.JobService
	cron     *CronRunner
}

// New constructs the handler set.
func New(notifSvc *services.NotificationService, jobSvc *services.JobService, cron *CronRunner) *Handlers {
	return &Handlers{notifSvc: notifSvc, jobSvc: jobSvc, cron: cron}
}

// ListNotifications returns a page of the caller's notifications, newest
// first. Query params: page (1-based), per_page (1..100, default 20).
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid := middleware.UserID(c)

	page := utils.AtoiDefault(c.Query("page"), 1)
	perPage := utils.AtoiDefault(c.Query("per_page"), 20)
	offset, limit := utils.PageBounds(page, perPage, 100)

	res, err := h.notifSvc.ListInbox(c.Request.Context(), uid, offset, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list notifications")
		return
	}
	ok(c, http.StatusOK, res)
}

// UnreadCount returns the caller's unread notification count.
func (h *Handlers) UnreadCount(c *gin.Context) {
	uid := middleware.UserID(c)

	n, err := h.notifSvc.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not count notifications")
		return
	}
	ok(c, http.StatusOK, gin.H{"unread": n})
}

// MarkNotificationRead marks one of the caller's notifications as read.
// Marking an already-read notification succeeds silently; rows belonging to
// other users are indistinguishable from missing ones.
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	uid := middleware.UserID(c)
	id := c.Param("id")

	if err := h.notifSvc.MarkRead(c.Request.Context(), uid, id); err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not mark notification read")
		return
	}
	noContent(c)
}
