// Package worker runs periodic maintenance jobs alongside the HTTP server.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agropal/agropal/internal/metrics"
)

// Worker runs registered jobs, each on its own ticker.
type Worker struct {
	jobs   []scheduled
	config Config
	logger *slog.Logger

	// Synchronization
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

type scheduled struct {
	job      Job
	interval time.Duration
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Register schedules job every interval. Call this before Start().
func (w *Worker) Register(job Job, interval time.Duration) error {
	if w.started {
		return fmt.Errorf("register %s: worker already started", job.Type())
	}
	if interval <= 0 {
		return fmt.Errorf("register %s: interval must be positive, got %v", job.Type(), interval)
	}
	for _, s := range w.jobs {
		if s.job.Type() == job.Type() {
			return fmt.Errorf("register %s: job already registered", job.Type())
		}
	}
	w.jobs = append(w.jobs, scheduled{job: job, interval: interval})
	w.logger.Debug("registered job", "job_type", job.Type(), "interval", interval)
	return nil
}

// Start launches one goroutine per registered job.
func (w *Worker) Start(ctx context.Context) {
	w.started = true
	for _, s := range w.jobs {
		w.wg.Add(1)
		go w.loop(ctx, s)
	}
	w.logger.Info("worker started", "jobs", len(w.jobs))
}

// Stop signals all jobs to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded, some jobs may still be running")
	}
}

func (w *Worker) loop(ctx context.Context, s scheduled) {
	defer w.wg.Done()

	logger := w.logger.With("job_type", s.job.Type())

	if w.config.RunOnStart {
		if stop := w.runOnce(ctx, s.job, logger); stop {
			return
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stop := w.runOnce(ctx, s.job, logger); stop {
				return
			}
		}
	}
}

// runOnce executes a single pass and reports whether the job should stop.
func (w *Worker) runOnce(ctx context.Context, job Job, logger *slog.Logger) bool {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)

	if err != nil {
		metrics.JobFailed(job.Type(), duration)
		if IsPermanent(err) {
			logger.Error("job failed permanently, unscheduling", "error", err)
			return true
		}
		logger.Error("job failed", "error", err, "duration_ms", duration.Milliseconds())
		return false
	}

	metrics.JobCompleted(job.Type(), duration)
	logger.Debug("job completed", "duration_ms", duration.Milliseconds())
	return false
}
