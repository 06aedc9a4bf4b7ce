package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/store"
)

type createSessionRequest struct {
	StationID       int64      `json:"stationId" binding:"required"`
	WorkerID        int64      `json:"workerId" binding:"required"`
	StartedAt       *time.Time `json:"startedAt"`
	InitialStatusID int64      `json:"initialStatusId" binding:"required"`
}

// PostSession handles POST /api/sessions.
func (h *Handler) PostSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startedAt := time.Now().UTC()
	if req.StartedAt != nil {
		startedAt = *req.StartedAt
	}

	session, err := h.store.CreateSession(c.Request.Context(), store.CreateSessionParams{
		StationID:       req.StationID,
		WorkerID:        req.WorkerID,
		StartedAt:       startedAt,
		InitialStatusID: req.InitialStatusID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, session)
}

type appendIntervalRequest struct {
	StatusID int64      `json:"statusId" binding:"required"`
	At       *time.Time `json:"at"`
}

// PostInterval handles POST /api/sessions/{id}/intervals. It closes the
// session's open interval and opens a new one with the given status.
func (h *Handler) PostInterval(c *gin.Context) {
	var req appendIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	at := time.Now().UTC()
	if req.At != nil {
		at = *req.At
	}

	interval, err := h.store.AppendInterval(c.Request.Context(), c.Param("id"), req.StatusID, at)
	if h.writeError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, interval)
}

type updateCountersRequest struct {
	GoodDelta  int64 `json:"goodDelta"`
	ScrapDelta int64 `json:"scrapDelta"`
}

// PatchCounters handles PATCH /api/sessions/{id}/counters.
func (h *Handler) PatchCounters(c *gin.Context) {
	var req updateCountersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.store.UpdateCounters(c.Request.Context(), c.Param("id"), req.GoodDelta, req.ScrapDelta)
	if h.writeError(c, err) {
		return
	}
	c.JSON(http.StatusOK, session)
}

type closeSessionRequest struct {
	Status model.SessionStatus `json:"status" binding:"required"`
	At     *time.Time          `json:"at"`
}

// PostClose handles POST /api/sessions/{id}/close.
func (h *Handler) PostClose(c *gin.Context) {
	var req closeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != model.SessionCompleted && req.Status != model.SessionAborted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be completed or aborted"})
		return
	}

	at := time.Now().UTC()
	if req.At != nil {
		at = *req.At
	}

	session, err := h.store.CloseSession(c.Request.Context(), c.Param("id"), req.Status, at)
	if h.writeError(c, err) {
		return
	}
	c.JSON(http.StatusOK, session)
}

type attachReportRequest struct {
	Kind             model.ReportKind `json:"kind" binding:"required"`
	Reason           string           `json:"reason"`
	Quantity         int64            `json:"quantity"`
	StatusIntervalID *int64           `json:"statusIntervalId"`
}

// PostReport handles POST /api/sessions/{id}/reports.
func (h *Handler) PostReport(c *gin.Context) {
	var req attachReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.store.AttachReport(c.Request.Context(), c.Param("id"), store.ReportParams{
		Kind:             req.Kind,
		Reason:           req.Reason,
		Quantity:         req.Quantity,
		StatusIntervalID: req.StatusIntervalID,
	})
	if h.writeError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, report)
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *Handler) DeleteSession(c *gin.Context) {
	err := h.store.DeleteSession(c.Request.Context(), c.Param("id"))
	if h.writeError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps store errors to HTTP statuses. Returns true when a
// response was written.
func (h *Handler) writeError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, store.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "session already closed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	return true
}
