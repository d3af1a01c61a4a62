package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/service"
	"github.com/timmy/lungscan/internal/source"
)

// AdminHandler runs batch classification over server-side image sources.
type AdminHandler struct {
	batch   *service.BatchService
	sources map[string]source.Source

	// Batch job state
	mu            sync.RWMutex
	isRunning     bool
	currentStats  *service.BatchStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - batch: batch service instance.
//   - sources: map of source adapters keyed by name.
//
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(batch *service.BatchService, sources map[string]source.Source) *AdminHandler {
	return &AdminHandler{
		batch:   batch,
		sources: sources,
	}
}

// BatchRequest represents the batch API request.
type BatchRequest struct {
	Source    string `json:"source" binding:"required"`
	Limit     int    `json:"limit" binding:"min=0,max=10000"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

// BatchResponse represents the batch API response.
type BatchResponse struct {
	Message string              `json:"message"`
	Stats   *service.BatchStats `json:"stats,omitempty"`
}

// BatchStatusResponse represents the batch job status.
type BatchStatusResponse struct {
	IsRunning     bool                `json:"is_running"`
	Sources       []string            `json:"sources"`
	LastRunTime   string              `json:"last_run_time,omitempty"`
	LastRunStatus string              `json:"last_run_status,omitempty"`
	CurrentStats  *service.BatchStats `json:"current_stats,omitempty"`
	RecentJobs    []domain.BatchJob   `json:"recent_jobs"`
}

const recentJobsShown = 10

// TriggerBatch handles POST /admin/batch. Only one run is allowed at a time.
func (h *AdminHandler) TriggerBatch(c *gin.Context) {
	ctx := c.Request.Context()

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid batch request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src, ok := h.sources[req.Source]
	if !ok {
		logger.CtxWarn(ctx, "Unknown source requested: source=%s, client_ip=%s", req.Source, c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source: " + req.Source})
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Batch request rejected: already running, source=%s", req.Source)
		c.JSON(http.StatusConflict, gin.H{"error": "Batch classification is already running"})
		return
	}
	h.isRunning = true
	h.currentStats = nil
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting batch classification: source=%s, limit=%d", req.Source, req.Limit)

	// Detach from the request so a client timeout does not abort the run.
	runCtx := context.WithoutCancel(ctx)
	stats, err := h.batch.ClassifyFromSource(runCtx, src, req.Limit, &service.BatchOptions{
		UserEmail: req.UserEmail,
		UserName:  req.UserName,
	})

	h.mu.Lock()
	h.isRunning = false
	h.currentStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		respondError(c, "Batch classification", err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
		logger.FieldCount:      stats.ProcessedItems,
	}).Info(ctx, "Batch classification completed: source=%s, total=%d, failed=%d",
		req.Source, stats.TotalItems, stats.FailedItems)

	c.JSON(http.StatusOK, BatchResponse{
		Message: "Batch classification completed",
		Stats:   stats,
	})
}

// GetBatchStatus handles GET /admin/batch.
func (h *AdminHandler) GetBatchStatus(c *gin.Context) {
	jobs, err := h.batch.RecentJobs(c.Request.Context(), recentJobsShown)
	if err != nil {
		respondError(c, "List batch jobs", err)
		return
	}
	if jobs == nil {
		jobs = []domain.BatchJob{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := BatchStatusResponse{
		RecentJobs:    jobs,
		IsRunning:     h.isRunning,
		Sources:       make([]string, 0, len(h.sources)),
		LastRunStatus: h.lastRunStatus,
		CurrentStats:  h.currentStats,
	}
	for name := range h.sources {
		resp.Sources = append(resp.Sources, name)
	}
	sort.Strings(resp.Sources)
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}
