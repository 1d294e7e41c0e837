package interfaces

import (
	"context"
	"time"
)

// ScheduledJob describes one registered job for the status surface.
type ScheduledJob struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	IsRunning   bool       `json:"is_running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// SchedulerService runs named cron jobs. Jobs are registered before Start;
// each job runs at most once at a time.
type SchedulerService interface {
	// RegisterJob adds a named job with a standard cron schedule.
	RegisterJob(name, schedule, description string, handler func(ctx context.Context) error) error

	// Start begins cron evaluation for all registered jobs.
	Start() error

	// Stop halts the scheduler and waits for running jobs to finish.
	Stop() error

	// TriggerNow runs a registered job immediately, outside its schedule.
	TriggerNow(name string) error

	// JobStatus returns the current state of every registered job.
	JobStatus() []ScheduledJob
}
