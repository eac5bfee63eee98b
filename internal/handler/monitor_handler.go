package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow lookups from blocking the SSE loop
)

type MonitorHandler struct {
	examService    *service.ExamService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	examService *service.ExamService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		examService:    examService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// GetSnapshot godoc
// GET /api/v1/teacher/exams/:exam_id/monitor/snapshot
func (h *MonitorHandler) GetSnapshot(c *gin.Context) {
	examID := c.Param("exam_id")
	if _, err := h.examService.GetByID(examID); err != nil {
		fail(c, err)
		return
	}

	snap, err := h.monitorService.Snapshot(c.Request.Context(), examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID).Msg("Failed to build monitor snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"snapshot": snap})
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:exam_id/monitor
//
// Streams a snapshot on connect and every refreshInterval, and forwards the
// violation and finished events of the exam as they happen.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID := c.Param("exam_id")
	if _, err := h.examService.GetByID(examID); err != nil {
		fail(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	pubsub := h.monitorService.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	h.sendSnapshot(c, reqCtx, examID)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID).Msg("Teacher attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already a MonitorEvent in JSON.
			_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendSnapshot(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			_, _ = fmt.Fprint(c.Writer, "data: {\"type\":\"ping\"}\n\n")
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the current state of the exam as a snapshot event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, examID string) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID).Msg("Failed to build monitor snapshot")
		return
	}

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": snap,
	})
	c.Writer.Flush()
}
