// Package scheduler runs the synchronization job on a fixed interval,
// with an out-of-band trigger for webhook-driven runs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one scheduled unit of work. Errors are logged and the schedule
// keeps going; a failing server must not kill the loop.
type Job func(ctx context.Context) error

// Scheduler runs a job every interval until stopped. Trigger requests an
// immediate run between ticks; concurrent runs never overlap because the
// loop is single-threaded.
type Scheduler struct {
	interval time.Duration
	job      Job
	logger   *zap.Logger

	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New returns a scheduler for the job. Start must be called to begin.
func New(interval time.Duration, job Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		job:      job,
		logger:   logger.With(zap.String("component", "scheduler")),
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the schedule loop. It returns immediately; the loop ends
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Trigger requests a run as soon as the loop is idle. Requests arriving
// while one is already pending coalesce into a single run.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("schedule started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("schedule stopped", zap.Error(ctx.Err()))
			return
		case <-s.stop:
			s.logger.Info("schedule stopped")
			return
		case <-ticker.C:
			s.run(ctx, "interval")
		case <-s.trigger:
			s.run(ctx, "trigger")
		}
	}
}

func (s *Scheduler) run(ctx context.Context, reason string) {
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed",
			zap.String("reason", reason),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Info("scheduled run complete",
		zap.String("reason", reason),
		zap.Duration("duration", time.Since(start)))
}
