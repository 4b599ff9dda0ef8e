// Admin job HTTP handlers.
//
// This file exposes the admin-only job API:
//   - GET  /admin/jobs             (definitions + recent runs)
//   - POST /admin/jobs/{name}/run  (trigger a named job)
//
// Job-body failures come back as HTTP 200 with a failed run row; failure is
// data in the run ledger. Only the pre-execution guards map to error statuses
// (404 unknown name, 409 already running).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bighog300/artpulse/internal/domain"
	"github.com/bighog300/artpulse/internal/http/middleware"
	"github.com/bighog300/artpulse/internal/services"
)

// RunJobRequest optionally parameterizes a triggered job.
type RunJobRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// jobInfo is the listing shape for one registry entry.
type jobInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListJobs returns the job registry and the most recent runs across all jobs.
func (h *Handlers) ListJobs(c *gin.Context) {
	defs := h.jobSvc.Definitions()
	infos := make([]jobInfo, 0, len(defs))
	for _, d := range defs {
		infos = append(infos, jobInfo{Name: d.Name, Description: d.Description})
	}

	runs, err := h.jobSvc.History(c.Request.Context(), "", 20)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load job history")
		return
	}
	ok(c, http.StatusOK, gin.H{"jobs": infos, "recent_runs": runs})
}

// RunJob triggers the named job on behalf of the calling admin and returns
// the completed run row.
func (h *Handlers) RunJob(c *gin.Context) {
	name := c.Param("name")

	var req RunJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
			return
		}
	}

	run, err := h.jobSvc.Run(c.Request.Context(), name, services.RunOptions{
		Trigger:    domain.TriggerAdmin,
		ActorEmail: middleware.AdminEmail(c),
		Params:     req.Params,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownJob):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown job name")
		case errors.Is(err, services.ErrJobAlreadyRunning):
			fail(c, http.StatusConflict, ErrCodeConflict, "job already running")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "job execution failed to start")
		}
		return
	}

	ok(c, http.StatusOK, run)
}
