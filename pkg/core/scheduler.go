// Package core runs the host frame loop: it advances the bridge on a fixed
// heartbeat, runs periodic jobs, and executes commands from other goroutines
// on the loop goroutine.
package core

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrStopped is returned by Do once the scheduler has stopped.
var ErrStopped = errors.New("scheduler stopped")

// DefaultInterval is used when no tick interval is configured.
const DefaultInterval = 16 * time.Millisecond

// Ticker is advanced once per frame. bridge.Module satisfies it.
type Ticker interface {
	Tick(ctx context.Context, dt time.Duration)
}

// waiter is implemented by jobs that run off the loop goroutine.
type waiter interface {
	Wait()
}

type command struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Scheduler manages the central heartbeat and scheduled jobs.
type Scheduler struct {
	interval time.Duration
	ticker   Ticker
	jobs     []Job
	commands chan command
	stopped  chan struct{}
	now      func() time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(interval time.Duration, t Ticker) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		interval: interval,
		ticker:   t,
		jobs:     []Job{},
		commands: make(chan command),
		stopped:  make(chan struct{}),
		now:      time.Now,
	}
}

// AddJob registers a job. Call before Start.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the main loop. It blocks until context is cancelled and every
// in-flight background job has returned.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", s.interval)

	last := s.now()
	for {
		select {
		case <-ctx.Done():
			s.waitJobs()
			slog.Info("Scheduler stopped")
			return
		case cmd := <-s.commands:
			cmd.fn(ctx)
			close(cmd.done)
		case <-ticker.C:
			now := s.now()
			s.tick(ctx, now, now.Sub(last))
			last = now
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time, dt time.Duration) {
	s.ticker.Tick(ctx, dt)

	for _, job := range s.jobs {
		if job.ShouldFire(now) {
			job.Run(ctx, now)
		}
	}
}

func (s *Scheduler) waitJobs() {
	for _, job := range s.jobs {
		if w, ok := job.(waiter); ok {
			w.Wait()
		}
	}
}
