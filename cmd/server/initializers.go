package main

import (
	"fmt"
	"net/http"
	"time"

	"execq/app/handler"
	"execq/app/router"
	"execq/internal/service"
	brokermgr "execq/pkg/broker/asynq"
	"execq/pkg/config"
	"execq/pkg/logger"
	mysqlstore "execq/pkg/store/mysql"
	redisstore "execq/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMySQL initializes MySQL
func (app *Application) initMySQL() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		app.config.MySQL.User,
		app.config.MySQL.Password,
		app.config.MySQL.Host,
		app.config.MySQL.Port,
		app.config.MySQL.Database,
	)

	ds, err := mysqlstore.NewDatastore(dsn)
	if err != nil {
		return err
	}

	app.datastore = ds
	app.taskRepo = mysqlstore.NewTaskRepository(ds)
	if err := app.taskRepo.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate tasks table: %w", err)
	}

	app.registerCleanup(func() {
		ds.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initBroker initializes the dispatch broker
func (app *Application) initBroker() error {
	app.broker = brokermgr.NewManager(app.config)
	app.registerCleanup(func() {
		app.broker.Close()
		logger.InfoCtx(app.ctx, "Broker connection has been closed")
	})
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	// The reconciler is the single writer for task state; every lifecycle
	// change from workers or sweeps funnels through it
	app.reconciler = service.NewReconciler(app.taskRepo)

	app.taskService = service.NewTaskService(app.taskRepo, app.broker, app.reconciler, app.config.Worker)

	heartbeatRepo := redisstore.NewHeartbeatRepository(
		app.redisClient,
		app.config.Liveness.ExpiryThreshold(),
	)
	app.workerService = service.NewWorkerService(heartbeatRepo, app.config.Liveness)

	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.taskHandler = handler.NewTaskHandler(app.taskService)
	app.workerHandler = handler.NewWorkerHandler(app.workerService, app.reconciler)
	app.statsHandler = handler.NewStatsHandler(app.taskService)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	r := router.NewRouter(app.taskHandler, app.workerHandler, app.statsHandler)

	gin.SetMode(app.config.Server.Mode)

	app.ginEngine = gin.New()
	app.ginEngine.Use(gin.Recovery())

	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}
