package main

import (
	"os"
	"os/signal"
	"syscall"

	"execq/internal/worker"
	brokermgr "execq/pkg/broker/asynq"
	"execq/pkg/config"
	"execq/pkg/logger"

	"github.com/google/uuid"
)

func main() {
	if err := config.Init(); err != nil {
		logger.FatalCtx(nil, "Failed to load configuration: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.Init(); err != nil {
		logger.FatalCtx(nil, "Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	broker := brokermgr.NewManager(cfg)
	defer broker.Close()

	executor := worker.NewShellExecutor()
	reporter := worker.NewHTTPReporter(
		cfg.Worker.ServerURL,
		workerID,
		cfg.Worker.Type,
		cfg.Server.APIKey,
	)

	runtime := worker.NewRuntime(workerID, cfg, broker, executor, reporter)
	if err := runtime.Start(); err != nil {
		logger.Fatalf("Failed to start worker runtime: %v", err)
	}

	logger.Infof("Worker started, id: %s, coordinator: %s", workerID, cfg.Worker.ServerURL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infof("Received exit signal: %v", sig)

	// Stop claiming, let the in-flight job finish, then stop heartbeating
	runtime.Stop()
	logger.Infof("Worker safely exited")
}
