package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler submits study-wide sweeps on a cron schedule.
type Scheduler struct {
	manager  *Manager
	schedule string
	request  Request
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
	lastJob  string
}

// NewScheduler creates a scheduler that submits req on schedule. An empty
// request sweeps every subject with every active rule.
func NewScheduler(manager *Manager, schedule string, req Request) *Scheduler {
	if req.Trigger == "" {
		req.Trigger = "schedule"
	}
	return &Scheduler{
		manager:  manager,
		schedule: schedule,
		request:  req,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "jobs.scheduler"),
	}
}

// Start begins scheduled sweeps.
//
// Common cron expressions:
//   - "0 2 * * *"    - Daily at 2 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "0 6 * * 1"    - Weekly on Monday at 6 AM
//
// If the schedule is empty, the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("sweep scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunNow submits one sweep. A sweep overlapping a job that still holds one
// of its subjects is skipped.
func (s *Scheduler) RunNow(ctx context.Context) (*Snapshot, error) {
	s.logger.Info("starting scheduled sweep")

	snap, err := s.manager.Submit(ctx, s.request)
	if err != nil {
		if IsBusy(err) {
			s.logger.Warn("scheduled sweep skipped, subjects still in flight", "error", err)
		} else {
			s.logger.Error("scheduled sweep failed", "error", err)
		}
		return nil, err
	}

	s.mu.Lock()
	s.lastJob = snap.JobID
	s.mu.Unlock()

	s.logger.Info("scheduled sweep submitted",
		"job_id", snap.JobID,
		"subjects", len(snap.SubjectIDs),
		"rules", len(snap.RuleIDs),
	)
	return snap, nil
}

// Stop stops the scheduler and waits for a running submission to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastJob returns the id of the most recently submitted sweep.
func (s *Scheduler) LastJob() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastJob
}

// NextRun returns the next scheduled sweep time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
