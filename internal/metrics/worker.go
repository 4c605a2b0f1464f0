package metrics

import "time"

// JobCompleted records a successful periodic job run
func JobCompleted(jobType string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a failed periodic job run
func JobFailed(jobType string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, "failed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}
