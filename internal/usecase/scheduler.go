package usecase

import (
	"context"
	"log/slog"
	"time"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// Scheduler wires the daily driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	mode     domain.RunMode
	loc      *time.Location
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs. Each trigger
// runs the pipeline for the trigger's date in loc.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, mode domain.RunMode, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{driver: driver, pipeline: pipeline, mode: mode, loc: loc, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		runDate := trigger.In(s.loc).Format(domain.RunDateLayout)
		outcome, err := s.pipeline.Run(ctx, s.mode, runDate)
		if s.logger == nil {
			return
		}
		if err != nil {
			s.logger.Error("scheduled run failed", "runDate", runDate, "error", err)
			return
		}
		s.logger.Info("scheduled run finished", "runDate", runDate, "status", outcome.Status.String())
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
