// Package jobs runs the service's periodic background work and reports each
// execution to Prometheus.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Func is one execution of a job.
type Func func(ctx context.Context) error

// Job is a named task repeated at a fixed interval.
type Job struct {
	Type     string
	Interval time.Duration
	Run      Func
}

// Runner executes jobs. The zero value logs to slog.Default and records no
// metrics.
type Runner struct {
	Metrics *Metrics
	Logger  *slog.Logger
}

// RunOnce executes fn once and records its outcome.
func (r *Runner) RunOnce(ctx context.Context, jobType string, fn Func) error {
	start := time.Now()
	err := fn(ctx)
	r.Metrics.observe(jobType, time.Since(start).Seconds(), err)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger().Warn("background job failed", "job_type", jobType, "error", err)
	}
	return err
}

// Every runs job at its interval until ctx is cancelled. The first run
// happens one interval after the call. Failures are logged and counted but
// do not stop the loop. It always returns nil.
func (r *Runner) Every(ctx context.Context, job Job) error {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = r.RunOnce(ctx, job.Type, job.Run)
		}
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// errorType is the error_type label for err.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
