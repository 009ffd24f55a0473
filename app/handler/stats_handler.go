package handler

import (
	"net/http"

	"execq/internal/service"
	"execq/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatsHandler exposes aggregate task and queue statistics
type StatsHandler struct {
	taskService *service.TaskService
}

// NewStatsHandler creates stats handler
func NewStatsHandler(taskService *service.TaskService) *StatsHandler {
	return &StatsHandler{taskService: taskService}
}

// GetStats gets task counts by status plus queue depth
// @Summary Get statistics
// @Description Get task counts grouped by status and broker queue statistics
// @Tags stats
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /stats [get]
func (h *StatsHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	taskStats, err := h.taskService.TaskStats(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to get task stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"tasks": taskStats,
	}

	// Queue stats are advisory; a broker hiccup should not fail the whole call
	if queueStats, err := h.taskService.QueueStats(ctx); err != nil {
		logger.WarnCtx(ctx, "failed to get queue stats: %v", err)
	} else {
		resp["queue"] = queueStats
	}

	c.JSON(http.StatusOK, resp)
}
