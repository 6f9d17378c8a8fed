// Package scheduler drives the periodic tournament update pass.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/tournament-engine/internal/config"
)

const jobName = "tournament-update"

// Scheduler runs one task on a fixed interval. A run that overlaps the
// previous one is skipped rather than queued.
type Scheduler struct {
	config *config.SchedulerConfig
	logger *slog.Logger

	mu      sync.Mutex
	sched   gocron.Scheduler
	cancel  context.CancelFunc
	running bool
}

// New creates a scheduler. Nothing runs until Start.
func New(cfg *config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: logger,
	}
}

// Start begins running task every interval after the configured start
// delay. Starting a running scheduler is a no-op. A stopped scheduler
// can be started again.
func (s *Scheduler) Start(task func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	start := gocron.WithStartImmediately()
	if s.config.StartDelay > 0 {
		start = gocron.WithStartDateTime(time.Now().Add(s.config.StartDelay))
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func() { task(ctx) }),
		gocron.WithName(jobName),
		gocron.WithStartAt(start),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return fmt.Errorf("scheduling %s: %w", jobName, err)
	}

	sched.Start()
	s.sched = sched
	s.cancel = cancel
	s.running = true

	s.logger.Info("scheduler started",
		"interval", s.config.Interval,
		"start_delay", s.config.StartDelay,
	)
	return nil
}

// Stop cancels the running task and waits for it to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	s.cancel()
	err := s.sched.Shutdown()
	s.sched = nil
	s.running = false

	if err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// Running reports whether the update task is scheduled
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
