package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"execq/internal/model"
	"execq/internal/service"
	"execq/pkg/constants"
	"execq/pkg/errs"
	"execq/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TaskHandler handles task operations
type TaskHandler struct {
	taskService *service.TaskService
}

// NewTaskHandler creates task handler
func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Submit submits an async task
// @Summary Submit task
// @Description Submit async task, returns immediately with the assigned task ID
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body model.SubmitRequest true "Task request"
// @Success 200 {object} model.SubmitResponse
// @Router /run [post]
func (h *TaskHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.ErrorCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := h.taskService.Submit(c.Request.Context(), &req)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to submit task: %v", err)
		c.JSON(submitStatusCode(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitSync submits a task and waits for the result
// @Summary Submit task synchronously
// @Description Submit task and wait for the terminal result
// @Tags tasks
// @Accept json
// @Produce json
// @Param wait query int false "Wait timeout in milliseconds (default 60000)"
// @Param request body model.SubmitRequest true "Task request"
// @Success 200 {object} model.TaskResponse
// @Router /runsync [post]
func (h *TaskHandler) SubmitSync(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.ErrorCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	wait := 60 * time.Second
	if waitParam := c.Query("wait"); waitParam != "" {
		if waitMs, err := strconv.Atoi(waitParam); err == nil && waitMs > 0 {
			wait = time.Duration(waitMs) * time.Millisecond
		}
	}

	resp, err := h.taskService.SubmitSync(c.Request.Context(), &req, wait)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to submit task sync: %v", err)
		c.JSON(submitStatusCode(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Status gets task status
// @Summary Get task status
// @Description Get task status by task ID
// @Tags tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} model.TaskResponse
// @Router /status/{task_id} [get]
func (h *TaskHandler) Status(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	resp, err := h.taskService.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, errs.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to get task, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListTasks gets task list
// @Summary Get task list
// @Description Get task list, supports filtering by status, supports pagination
// @Tags tasks
// @Produce json
// @Param status query string false "Task status (QUEUED, RUNNING, COMPLETED, FAILED, TIMEOUT)"
// @Param limit query int false "Return count limit (default 100)"
// @Param offset query int false "Offset (default 0)"
// @Success 200 {object} map[string]interface{} "Return format: {tasks: [], total: 0, limit: 100, offset: 0}"
// @Router /tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var status constants.TaskStatus
	if statusParam := c.Query("status"); statusParam != "" {
		status = constants.TaskStatus(statusParam)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + statusParam})
			return
		}
	}

	limit := 100
	if limitParam := c.Query("limit"); limitParam != "" {
		if parsedLimit, err := strconv.Atoi(limitParam); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	offset := 0
	if offsetParam := c.Query("offset"); offsetParam != "" {
		if parsedOffset, err := strconv.Atoi(offsetParam); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	tasks, total, err := h.taskService.ListTasks(c.Request.Context(), status, limit, offset)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list tasks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":  tasks,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// DeleteTask deletes a terminal task record
// @Summary Delete task
// @Description Delete task by task ID; only terminal tasks can be deleted
// @Tags tasks
// @Param task_id path string true "Task ID"
// @Success 200 {object} map[string]string
// @Router /tasks/{task_id} [delete]
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), taskID); err != nil {
		switch {
		case errors.Is(err, errs.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case errors.Is(err, errs.ErrTaskNotTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.ErrorCtx(c.Request.Context(), "failed to delete task, task_id: %s, error: %v", taskID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func submitStatusCode(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
