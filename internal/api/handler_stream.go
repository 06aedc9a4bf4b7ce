package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/stream"
)

// StreamActiveSessions handles GET /api/stream/sessions. The request blocks
// for the lifetime of the client connection.
func (h *Handler) StreamActiveSessions(c *gin.Context) {
	sink, ok := h.openSink(c)
	if !ok {
		return
	}
	ch := stream.NewActiveSessionsChannel(sink, h.feed, h.builder, h.listOpts)
	ch.Run(c.Request.Context())
}

// StreamSessionDetail handles GET /api/stream/sessions/{id}.
func (h *Handler) StreamSessionDetail(c *gin.Context) {
	sink, ok := h.openSink(c)
	if !ok {
		return
	}
	ch := stream.NewSessionDetailChannel(sink, h.feed, h.builder, c.Param("id"), h.detailOpts)
	ch.Run(c.Request.Context())
}

// StreamStationProgress handles GET /api/stream/stations/{id}/progress.
func (h *Handler) StreamStationProgress(c *gin.Context) {
	stationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid station ID"})
		return
	}
	sink, ok := h.openSink(c)
	if !ok {
		return
	}
	ch := stream.NewStationProgressChannel(sink, h.feed, h.builder, stationID, h.listOpts)
	ch.Run(c.Request.Context())
}

func (h *Handler) openSink(c *gin.Context) (stream.Sink, bool) {
	stream.SetSSEHeaders(c.Writer)
	sink, err := stream.NewSSESink(c.Writer)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return nil, false
	}
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
	return sink, true
}
