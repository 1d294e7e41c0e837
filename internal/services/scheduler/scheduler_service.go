package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func(ctx context.Context) error
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service implements SchedulerService on robfig/cron. Each job is guarded
// against overlapping runs: a tick that fires while the previous run is
// still going is skipped.
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) interfaces.SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob adds a named cron job. Must be called before Start.
func (s *Service) RegisterJob(name, schedule, description string, handler func(ctx context.Context) error) error {
	if name == "" || handler == nil {
		return fmt.Errorf("job name and handler are required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		enabled:     true,
	}

	cronID, err := s.cron.AddFunc(schedule, func() { s.executeJob(name) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", name, err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Scheduled job registered")

	return nil
}

// Start begins the scheduler
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler and waits for in-flight jobs to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Scheduled jobs did not finish within shutdown timeout")
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// TriggerNow runs a registered job immediately, outside its schedule.
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	_, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s is not registered", name)
	}

	common.SafeGo(s.logger, "scheduler:"+name, func() {
		s.executeJob(name)
	})
	return nil
}

// JobStatus returns the current state of every registered job.
func (s *Service) JobStatus() []interfaces.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]interfaces.ScheduledJob, 0, len(s.jobs))
	for _, entry := range s.jobs {
		job := interfaces.ScheduledJob{
			Name:        entry.name,
			Schedule:    entry.schedule,
			Description: entry.description,
			Enabled:     entry.enabled,
			IsRunning:   entry.isRunning,
			LastError:   entry.lastError,
		}
		if entry.lastRun != nil {
			t := *entry.lastRun
			job.LastRun = &t
		}
		if s.running {
			next := s.cron.Entry(entry.cronID).Next
			if !next.IsZero() {
				job.NextRun = &next
			}
		}
		out = append(out, job)
	}
	return out
}

// executeJob runs one job, skipping the tick when the previous run is still
// in flight.
func (s *Service) executeJob(name string) {
	s.mu.Lock()
	entry, exists := s.jobs[name]
	if !exists || !entry.enabled || entry.isRunning {
		if exists && entry.isRunning {
			s.logger.Debug().Str("job_name", name).Msg("Skipping tick - previous run still in flight")
		}
		s.mu.Unlock()
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.mu.Unlock()

	start := time.Now()
	err := handler(s.ctx)
	duration := time.Since(start)

	s.mu.Lock()
	entry.isRunning = false
	entry.lastRun = &start
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_name", name).
			Dur("duration", duration).
			Msg("Scheduled job failed")
		return
	}

	s.logger.Debug().
		Str("job_name", name).
		Dur("duration", duration).
		Msg("Scheduled job completed")
}
