package router

import (
	"execq/app/handler"
	"execq/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	taskHandler   *handler.TaskHandler
	workerHandler *handler.WorkerHandler
	statsHandler  *handler.StatsHandler
}

// NewRouter creates a new Router
func NewRouter(taskHandler *handler.TaskHandler, workerHandler *handler.WorkerHandler, statsHandler *handler.StatsHandler) *Router {
	return &Router{
		taskHandler:   taskHandler,
		workerHandler: workerHandler,
		statsHandler:  statsHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// V1 API - Client task management interface
	v1 := engine.Group("/v1")
	{
		v1.POST("/run", r.taskHandler.Submit)
		v1.POST("/runsync", r.taskHandler.SubmitSync)
		v1.GET("/status/:task_id", r.taskHandler.Status)
		v1.GET("/tasks", r.taskHandler.ListTasks)
		v1.DELETE("/tasks/:task_id", r.taskHandler.DeleteTask)

		v1.GET("/workers", r.workerHandler.GetWorkerList)
		v1.GET("/stats", r.statsHandler.GetStats)
	}

	// V2 API - Worker-facing interface
	v2 := engine.Group("/v2")
	v2.Use(middleware.AuthMiddleware())
	{
		v2.GET("/ping/:worker_id", r.workerHandler.Heartbeat)
		v2.POST("/job-start/:worker_id/:task_id", r.workerHandler.JobStarted)
		v2.POST("/job-done/:worker_id/:task_id", r.workerHandler.JobDone)
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
