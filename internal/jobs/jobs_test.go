package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_RunOnce(t *testing.T) {
	m := NewMetrics()
	r := &Runner{Metrics: m}
	boom := errors.New("boom")

	if err := r.RunOnce(context.Background(), JobTypeEventResync, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if err := r.RunOnce(context.Background(), JobTypeEventResync, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("RunOnce() error = %v, want %v", err, boom)
	}

	if got := counterValue(t, m.jobsTotal, JobTypeEventResync, StatusSuccess); got != 1 {
		t.Errorf("successes = %v, want 1", got)
	}
	if got := counterValue(t, m.jobsTotal, JobTypeEventResync, StatusFailure); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestRunner_EveryRepeatsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	r := &Runner{}
	go func() {
		done <- r.Every(ctx, Job{
			Type:     JobTypeRateLimitCleanup,
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				runs.Add(1)
				return errors.New("failures do not stop the loop")
			},
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("job ran %d times, want at least 3", runs.Load())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Every() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Every() did not return after cancel")
	}
}
