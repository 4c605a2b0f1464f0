package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the periodic job worker.
type Config struct {
	// JobTimeout is the maximum time a single run is allowed to take.
	// When exceeded the run's context is canceled and it counts as failed.
	// Default: 5 minutes
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running jobs to return.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// RunOnStart runs every job once immediately instead of waiting for
	// the first tick.
	RunOnStart bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		JobTimeout:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		RunOnStart:      true,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.JobTimeout < 1*time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
