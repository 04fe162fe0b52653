package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	cron      *cron.Cron
	enabled   bool
	isRunning bool

	refreshSchedule string
	cleanupSchedule string

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	refreshJob *RefreshJob
	cleanupJob *CleanupJob
}

// NewScheduler validates the cron specs. An empty spec or a nil job disables
// that job.
func NewScheduler(refreshSchedule string, refresh *RefreshJob, cleanupSchedule string, cleanup *CleanupJob, logger *slog.Logger) (*Scheduler, error) {
	for _, spec := range []string{refreshSchedule, cleanupSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		cron:            cron.New(),
		enabled:         true,
		refreshSchedule: refreshSchedule,
		cleanupSchedule: cleanupSchedule,
		refreshJob:      refresh,
		cleanupJob:      cleanup,
	}, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

func (s *Scheduler) refresh() error {
	return s.refreshJob.Run(s.ctx)
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	if s.refreshJob != nil && s.refreshSchedule != "" {
		if _, err := s.cron.AddFunc(s.refreshSchedule, func() {
			s.executeJobSafely("report_refresh", s.refresh)
		}); err != nil {
			return fmt.Errorf("schedule report refresh: %w", err)
		}

		// Run initial refresh so the API has a report right away
		go func() {
			s.logger.Info("Running initial report refresh...")
			s.executeJobSafely("report_refresh", s.refresh)
		}()
	}

	if s.cleanupJob != nil && s.cleanupSchedule != "" {
		if _, err := s.cron.AddFunc(s.cleanupSchedule, func() {
			s.executeJobSafely("warehouse_cleanup", s.cleanupJob.Run)
		}); err != nil {
			return fmt.Errorf("schedule warehouse cleanup: %w", err)
		}
	}

	s.cron.Start()
	s.isRunning = true

	s.logger.Info("Background jobs started",
		slog.String("refresh_schedule", s.refreshSchedule),
		slog.String("cleanup_schedule", s.cleanupSchedule))

	return nil
}

// Stop halts all background jobs and waits for a running job to notice.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false
	s.cancel()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("Timed out waiting for background jobs to finish")
	}

	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RefreshNow runs the refresh job immediately, outside the schedule
func (s *Scheduler) RefreshNow() error {
	if !s.enabled || s.refreshJob == nil {
		return nil
	}
	return s.refreshJob.Run(s.ctx)
}
