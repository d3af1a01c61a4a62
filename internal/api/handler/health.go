package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/lungscan/internal/classifier"
)

// PingFunc checks database reachability.
type PingFunc func(ctx context.Context) error

// ModelInfoFunc reports classifier metadata.
type ModelInfoFunc func() classifier.ModelInfo

// HealthHandler handles health check endpoints
type HealthHandler struct {
	ping      PingFunc
	modelInfo ModelInfoFunc
	timeout   time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(ping PingFunc, modelInfo ModelInfoFunc) *HealthHandler {
	return &HealthHandler{ping: ping, modelInfo: modelInfo, timeout: 2 * time.Second}
}

type componentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health reports database reachability and classifier status. It always answers 200;
// degraded components are described in the body.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	db := componentHealth{Status: "healthy", Message: "Database connection successful"}
	if err := h.ping(ctx); err != nil {
		db = componentHealth{Status: "unhealthy", Message: "Database error: " + err.Error()}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"database":  db,
		"model":     h.modelInfo(),
		"timestamp": time.Now().UTC(),
	})
}
