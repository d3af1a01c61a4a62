package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/service"
)

// StatsHandler handles aggregate statistics endpoints.
type StatsHandler struct {
	predictions *service.PredictionService
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(predictions *service.PredictionService) *StatsHandler {
	return &StatsHandler{predictions: predictions}
}

// Stats handles GET /stats.
func (h *StatsHandler) Stats(c *gin.Context) {
	stats, err := h.predictions.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "Error getting stats", err)
		return
	}
	if stats.RecentPredictions == nil {
		stats.RecentPredictions = []domain.PredictionResult{}
	}
	c.JSON(http.StatusOK, stats)
}

// UserStats handles GET /user/:email/stats.
func (h *StatsHandler) UserStats(c *gin.Context) {
	stats, err := h.predictions.UserStats(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, "Error getting user stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
