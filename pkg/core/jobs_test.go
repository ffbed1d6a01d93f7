package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimeJob(t *testing.T) {
	var count int
	job := NewTimeJob("TestTime", time.Second, func(context.Context) { count++ })
	ctx := context.Background()
	start := time.Unix(1000, 0)

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"FirstRun", 0, true},
		{"TooSoon", 500 * time.Millisecond, false},
		{"Exactly", time.Second, true},
		{"AfterReset", 1500 * time.Millisecond, false},
		{"Later", 2 * time.Second, true},
	}

	for _, tt := range tests {
		now := start.Add(tt.offset)
		got := job.ShouldFire(now)
		if got != tt.want {
			t.Errorf("%s: ShouldFire = %v, want %v", tt.name, got, tt.want)
		}
		if got {
			job.Run(ctx, now)
		}
	}
	if count != 3 {
		t.Errorf("expected 3 runs, got %d", count)
	}
	if job.Name() != "TestTime" {
		t.Errorf("unexpected name %q", job.Name())
	}
}

func TestBackgroundJob_NoReentry(t *testing.T) {
	release := make(chan struct{})
	var runs int32
	job := NewBackgroundJob("maintenance", 0, func(context.Context) {
		atomic.AddInt32(&runs, 1)
		<-release
	})
	ctx := context.Background()
	now := time.Now()

	if !job.ShouldFire(now) {
		t.Fatal("expected first fire")
	}
	job.Run(ctx, now)
	if job.ShouldFire(now.Add(time.Hour)) {
		t.Error("should not fire while the previous run is in flight")
	}
	job.Run(ctx, now)

	close(release)
	deadline := time.Now().Add(time.Second)
	for job.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if job.IsRunning() {
		t.Fatal("job never finished")
	}
	if n := atomic.LoadInt32(&runs); n != 1 {
		t.Errorf("expected 1 run, got %d", n)
	}
	if !job.ShouldFire(now.Add(time.Hour)) {
		t.Error("expected fire after completion")
	}
}
