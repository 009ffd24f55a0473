package handler

import (
	"errors"
	"net/http"

	"execq/internal/model"
	"execq/internal/service"
	"execq/pkg/errs"
	"execq/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WorkerHandler handles worker-facing operations: heartbeats, start
// acknowledgments and result submission. All task state changes funnel
// through the reconciler so this layer never writes the store directly.
type WorkerHandler struct {
	workerService *service.WorkerService
	reconciler    *service.Reconciler
}

// NewWorkerHandler creates a new worker handler
func NewWorkerHandler(workerService *service.WorkerService, reconciler *service.Reconciler) *WorkerHandler {
	return &WorkerHandler{
		workerService: workerService,
		reconciler:    reconciler,
	}
}

// Heartbeat handles worker heartbeat
// @Summary Worker heartbeat
// @Description Worker sends periodic heartbeat to maintain online status
// @Tags worker
// @Produce json
// @Param worker_id path string true "Worker ID"
// @Param type query string false "Worker type (local, cloud)"
// @Success 200 {object} map[string]string
// @Router /ping/{worker_id} [get]
func (h *WorkerHandler) Heartbeat(c *gin.Context) {
	workerID := c.Param("worker_id")
	if workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id required in URL path"})
		return
	}

	workerType := c.Query("type")

	if err := h.workerService.Heartbeat(c.Request.Context(), workerID, workerType); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to handle heartbeat: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// JobStarted acknowledges that a worker claimed a task and began executing
// @Summary Acknowledge job start
// @Description Worker reports it has started executing the task
// @Tags worker
// @Produce json
// @Param worker_id path string true "Worker ID"
// @Param task_id path string true "Task ID"
// @Success 200 {object} map[string]string
// @Router /job-start/{worker_id}/{task_id} [post]
func (h *WorkerHandler) JobStarted(c *gin.Context) {
	workerID := c.Param("worker_id")
	taskID := c.Param("task_id")
	if workerID == "" || taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id and task_id required in URL path"})
		return
	}

	if err := h.reconciler.MarkStarted(c.Request.Context(), taskID, workerID); err != nil {
		if errors.Is(err, errs.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to mark task started, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// JobDone records a task result
// @Summary Submit task result
// @Description Worker submits the result after attempting a task
// @Tags worker
// @Accept json
// @Produce json
// @Param worker_id path string true "Worker ID"
// @Param task_id path string true "Task ID"
// @Param request body model.ResultMessage true "Task result"
// @Success 200 {object} map[string]string
// @Router /job-done/{worker_id}/{task_id} [post]
func (h *WorkerHandler) JobDone(c *gin.Context) {
	workerID := c.Param("worker_id")
	taskID := c.Param("task_id")
	if workerID == "" || taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id and task_id required in URL path"})
		return
	}

	var msg model.ResultMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		logger.ErrorCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	// URL path wins over the body so a mislabeled payload cannot cross tasks
	msg.TaskID = taskID
	msg.WorkerID = workerID

	if err := h.reconciler.Apply(c.Request.Context(), &msg); err != nil {
		if errors.Is(err, errs.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to apply task result, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetWorkerList gets worker list with liveness status derived from heartbeat age
// @Summary Get worker list
// @Description Get all workers whose heartbeat has not yet expired
// @Tags worker
// @Produce json
// @Success 200 {array} model.Worker
// @Router /workers [get]
func (h *WorkerHandler) GetWorkerList(c *gin.Context) {
	workers, err := h.workerService.List(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get worker list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workers": workers,
		"total":   len(workers),
	})
}
