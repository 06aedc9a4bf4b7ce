package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/accounting"
	"factory-floor-backend/internal/store"
)

// GetSessionSummary handles GET /api/sessions/{id}/summary.
func (h *Handler) GetSessionSummary(c *gin.Context) {
	snap, err := h.builder.Build(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to compute summary"})
		return
	}
	c.JSON(http.StatusOK, snap.Summary)
}

// GetSessionsSummary handles GET /api/sessions/summary?ids=a,b,c[&mode=average].
// Totals are summed across sessions and the rates re-derived from the summed
// counters; average mode divides the additive fields by the session count.
func (h *Handler) GetSessionsSummary(c *gin.Context) {
	idsParam := c.Query("ids")
	if idsParam == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}
	mode := c.DefaultQuery("mode", "sum")
	if mode != "sum" && mode != "average" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "mode must be sum or average"})
		return
	}

	summaries := make([]accounting.Summary, 0)
	for _, id := range strings.Split(idsParam, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		snap, err := h.builder.Build(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found", "sessionId": id})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to compute summary"})
			return
		}
		summaries = append(summaries, snap.Summary)
	}
	if len(summaries) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	merged := accounting.Merge(summaries...)
	if mode == "average" {
		merged = accounting.AveragePerSession(merged)
	}
	c.JSON(http.StatusOK, merged)
}

// GetSessionTimeline handles GET /api/sessions/{id}/timeline.
func (h *Handler) GetSessionTimeline(c *gin.Context) {
	snap, err := h.builder.Build(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to compute timeline"})
		return
	}
	c.JSON(http.StatusOK, snap.Timeline)
}
