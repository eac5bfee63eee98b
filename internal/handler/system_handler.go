package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/session"
	"github.com/smada/genius-backend/internal/store"
	"github.com/smada/genius-backend/internal/validator"
)

const (
	metricsInterval = 7 * time.Second
	healthTimeout   = 2 * time.Second
)

// SystemHandler serves health, storage mode, runtime metrics and the
// dataset backup endpoints.
type SystemHandler struct {
	rdb           *redis.Client
	dataService   *service.DataService
	resultService *service.ResultService
	registry      *session.Registry
	startTime     time.Time
	log           zerolog.Logger
}

func NewSystemHandler(
	rdb *redis.Client,
	dataService *service.DataService,
	resultService *service.ResultService,
	registry *session.Registry,
	log zerolog.Logger,
) *SystemHandler {
	return &SystemHandler{
		rdb:           rdb,
		dataService:   dataService,
		resultService: resultService,
		registry:      registry,
		startTime:     time.Now(),
		log:           log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	redisOK := h.rdb.Ping(ctx).Err() == nil
	code, status := http.StatusOK, "ok"
	if !redisOK {
		code, status = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(code, gin.H{
		"status": status,
		"redis":  redisOK,
		"mode":   h.dataService.Mode(),
	})
}

// GetStatus godoc
// GET /api/v1/public/status
// Tells clients whether writes currently reach the cloud store.
func (h *SystemHandler) GetStatus(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"mode":  h.dataService.Mode(),
		"cloud": h.dataService.Cloud(),
	})
}

// ---------- SSE Endpoint ----------

type systemMetrics struct {
	Timestamp int64      `json:"timestamp"`
	Uptime    string     `json:"uptime"`
	Mode      store.Mode `json:"mode"`

	LiveSessions int `json:"live_sessions"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	StackInuse uint64 `json:"stack_inuse"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Worker Queues
	QueueResults    int64 `json:"queue_results"`
	QueueViolations int64 `json:"queue_violations"`
}

// SystemMetricsSSE godoc
// GET /api/v1/teacher/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Teacher connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Teacher disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp:    time.Now().Unix(),
		Uptime:       formatDuration(time.Since(h.startTime)),
		Mode:         h.dataService.Mode(),
		LiveSessions: h.registry.Len(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
	}

	// ── Go Runtime ──
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.StackInuse = ms.StackInuse
	m.NumGC = ms.NumGC

	// ── Worker Queues (pipelined LLEN) ──
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	pipe := h.rdb.Pipeline()
	resultsCmd := pipe.LLen(ctx, config.WorkerKey.PersistResultsQueue)
	violationsCmd := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueResults, _ = resultsCmd.Result()
		m.QueueViolations, _ = violationsCmd.Result()
	}

	return m
}

// ---------- Backup ----------

// ExportData godoc
// GET /api/v1/teacher/data/export
// Downloads the whole dataset as one JSON document.
func (h *SystemHandler) ExportData(c *gin.Context) {
	snap, err := h.dataService.Export()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode dataset")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	filename := fmt.Sprintf("smada-backup-%s.json", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.JSON(http.StatusOK, snap)
}

// RestoreData godoc
// POST /api/v1/teacher/data/restore
// Replaces the whole dataset with an exported document. Collections missing
// from the document end up empty.
func (h *SystemHandler) RestoreData(c *gin.Context) {
	var ds store.Dataset
	if fields := validator.Bind(c, &ds); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, fields)
		return
	}

	ctx := c.Request.Context()
	mode, err := h.dataService.Restore(ctx, ds)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.resultService.RebuildMarkers(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to rebuild completion markers after restore")
	}

	h.log.Info().
		Int("exams", len(ds.Exams)).
		Int("results", len(ds.Results)).
		Int("students", len(ds.Students)).
		Int("submissions", len(ds.Submissions)).
		Msg("Dataset restored")

	response.Saved(c, http.StatusOK, gin.H{
		"exams":       len(ds.Exams),
		"results":     len(ds.Results),
		"students":    len(ds.Students),
		"submissions": len(ds.Submissions),
	}, mode)
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
