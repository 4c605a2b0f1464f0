package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name:    "job timeout too short",
			config:  Config{JobTimeout: 100 * time.Millisecond, ShutdownTimeout: 30 * time.Second},
			wantErr: true,
		},
		{
			name:    "shutdown timeout too short",
			config:  Config{JobTimeout: time.Minute, ShutdownTimeout: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"permanent error", NewPermanentError(context.Canceled), true},
		{"regular error", context.Canceled, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Scheduling
// =============================================================================

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block bool
}

func (j *countingJob) Type() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return j.err
}

func newTestWorker(t *testing.T, cfg Config) *Worker {
	t.Helper()
	w, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return w
}

func TestWorker_RunsOnTicker(t *testing.T) {
	w := newTestWorker(t, DefaultConfig())
	job := &countingJob{name: "tick"}
	require.NoError(t, w.Register(job, 10*time.Millisecond))

	w.Start(context.Background())
	assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	w.Stop()

	after := job.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, job.runs.Load(), "no runs after Stop")
}

func TestWorker_PermanentErrorUnschedules(t *testing.T) {
	w := newTestWorker(t, DefaultConfig())
	job := &countingJob{name: "broken", err: NewPermanentError(errors.New("storage not listable"))}
	require.NoError(t, w.Register(job, 5*time.Millisecond))

	w.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	assert.Equal(t, int32(1), job.runs.Load())
}

func TestWorker_TransientErrorKeepsRunning(t *testing.T) {
	w := newTestWorker(t, DefaultConfig())
	job := &countingJob{name: "flaky", err: errors.New("timeout")}
	require.NoError(t, w.Register(job, 5*time.Millisecond))

	w.Start(context.Background())
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	w.Stop()
}

func TestWorker_JobTimeout(t *testing.T) {
	w := newTestWorker(t, Config{JobTimeout: time.Second, ShutdownTimeout: 5 * time.Second, RunOnStart: true})
	job := &countingJob{name: "slow", block: true}
	require.NoError(t, w.Register(job, time.Hour))

	start := time.Now()
	w.Start(context.Background())
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestWorker_Register(t *testing.T) {
	w := newTestWorker(t, DefaultConfig())

	require.NoError(t, w.Register(&countingJob{name: "a"}, time.Minute))
	assert.Error(t, w.Register(&countingJob{name: "a"}, time.Minute), "duplicate")
	assert.Error(t, w.Register(&countingJob{name: "b"}, 0), "zero interval")

	w.Start(context.Background())
	defer w.Stop()
	assert.Error(t, w.Register(&countingJob{name: "c"}, time.Minute), "after start")
}
