package main

import (
	"time"

	"execq/internal/jobs"
	"execq/pkg/logger"
)

func (app *Application) initJobs() error {
	if app.taskService == nil {
		logger.WarnCtx(app.ctx, "Service layer not fully initialized yet, skipping background task registration")
		return nil
	}

	manager := jobs.NewManager(app.ctx)

	sweep := app.config.Sweep
	manager.Register(jobs.NewRequeueSweep(
		app.taskService,
		time.Duration(sweep.RequeueInterval)*time.Second,
		time.Duration(sweep.RequeueGrace)*time.Second,
	))
	manager.Register(jobs.NewTimeoutSweep(
		app.taskService,
		time.Duration(sweep.TimeoutInterval)*time.Second,
	))
	manager.Register(jobs.NewDeadLetterSweep(
		app.taskService,
		time.Duration(sweep.DeadLetterInterval)*time.Second,
	))

	app.jobsManager = manager
	return nil
}
