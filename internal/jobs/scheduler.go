package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/najem/internal/config"
)

// Scheduler runs the Runner's jobs on their cron schedules.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers every job. Schedules use UTC and a seconds field.
func NewScheduler(runner *Runner, cfg config.JobsConfig) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	if _, err := c.AddFunc(cfg.ExpirySchedule, runner.WatchExpiry); err != nil {
		return nil, fmt.Errorf("registering WatchExpiry: %w", err)
	}
	if _, err := c.AddFunc(cfg.TokenPurgeSchedule, runner.PurgeRevokedTokens); err != nil {
		return nil, fmt.Errorf("registering PurgeRevokedTokens: %w", err)
	}

	return &Scheduler{cron: c}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}
