package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRegisterJobValidation(t *testing.T) {
	s := NewService(arbor.NewLogger())

	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.RegisterJob("", "*/1 * * * *", "", noop), "empty name")
	assert.Error(t, s.RegisterJob("job", "*/1 * * * *", "", nil), "nil handler")
	assert.Error(t, s.RegisterJob("job", "not a cron", "", noop), "bad schedule")

	require.NoError(t, s.RegisterJob("job", "*/1 * * * *", "test job", noop))
	assert.Error(t, s.RegisterJob("job", "*/1 * * * *", "", noop), "duplicate name")
}

func TestTriggerNowRunsJob(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var runs atomic.Int64
	require.NoError(t, s.RegisterJob("sweep", "*/5 * * * *", "metrics sweep", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	assert.Error(t, s.TriggerNow("unknown"))
	require.NoError(t, s.TriggerNow("sweep"))

	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("triggered job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestJobStatusReportsLastError(t *testing.T) {
	s := NewService(arbor.NewLogger()).(*Service)

	require.NoError(t, s.RegisterJob("flaky", "*/5 * * * *", "flaky job", func(ctx context.Context) error {
		return errors.New("platform unreachable")
	}))

	s.executeJob("flaky")

	jobs := s.JobStatus()
	require.Len(t, jobs, 1)
	assert.Equal(t, "flaky", jobs[0].Name)
	assert.Equal(t, "platform unreachable", jobs[0].LastError)
	assert.NotNil(t, jobs[0].LastRun)
	assert.False(t, jobs[0].IsRunning)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	s := NewService(arbor.NewLogger()).(*Service)

	release := make(chan struct{})
	var runs atomic.Int64
	require.NoError(t, s.RegisterJob("slow", "*/5 * * * *", "slow job", func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}))

	go s.executeJob("slow")

	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A tick that fires mid-run must be dropped, not queued
	s.executeJob("slow")
	assert.Equal(t, int64(1), runs.Load())

	close(release)
}
