package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Job defines a scheduled task. Jobs run on the loop goroutine; long work
// should be handed off by the job itself.
type Job interface {
	Name() string
	ShouldFire(now time.Time) bool
	Run(ctx context.Context, now time.Time)
}

// BaseJob provides atomic running state to prevent re-entry.
type BaseJob struct {
	name    string
	running int32 // 1 if running, 0 otherwise
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock attempts to set running to 1. Returns true if successful.
func (b *BaseJob) TryLock() bool {
	return atomic.CompareAndSwapInt32(&b.running, 0, 1)
}

func (b *BaseJob) Unlock() {
	atomic.StoreInt32(&b.running, 0)
}

// IsRunning reports whether the job is currently running.
func (b *BaseJob) IsRunning() bool {
	return atomic.LoadInt32(&b.running) == 1
}

// TimeJob fires when time elapsed exceeds threshold.
type TimeJob struct {
	BaseJob
	lastTime  time.Time
	threshold time.Duration
	action    func(context.Context)
	firstRun  bool
}

func NewTimeJob(name string, threshold time.Duration, action func(context.Context)) *TimeJob {
	return &TimeJob{
		BaseJob:   NewBaseJob(name),
		threshold: threshold,
		action:    action,
		firstRun:  true,
	}
}

func (j *TimeJob) ShouldFire(now time.Time) bool {
	if j.IsRunning() {
		return false
	}
	if j.firstRun {
		return true
	}
	return now.Sub(j.lastTime) >= j.threshold
}

func (j *TimeJob) Run(ctx context.Context, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.lastTime = now
	j.firstRun = false

	j.action(ctx)
}

// BackgroundJob is a TimeJob whose action runs on its own goroutine. It does
// not fire again until the previous run has finished.
type BackgroundJob struct {
	TimeJob
	wg sync.WaitGroup
}

func NewBackgroundJob(name string, threshold time.Duration, action func(context.Context)) *BackgroundJob {
	return &BackgroundJob{TimeJob: *NewTimeJob(name, threshold, action)}
}

func (j *BackgroundJob) Run(ctx context.Context, now time.Time) {
	if !j.TryLock() {
		return
	}
	j.lastTime = now
	j.firstRun = false

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.Unlock()
		j.action(ctx)
	}()
}

// Wait blocks until the in-flight run, if any, has returned.
func (j *BackgroundJob) Wait() {
	j.wg.Wait()
}
