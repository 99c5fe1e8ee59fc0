// Package scheduler runs a task on a fixed interval. Overlap protection is
// the task's job; the loop only dispatches and never blocks on a slow run.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

type Scheduler struct {
	interval time.Duration
	task     func(context.Context) error
	log      *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(interval time.Duration, task func(context.Context) error, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{interval: interval, task: task, log: log}
}

// Start dispatches the task once immediately, then on every tick. It blocks
// until Stop is called or ctx is cancelled. Calling Start on a scheduler
// that is already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("scheduler started", "interval", s.interval)
	s.dispatch(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// Stop shuts the loop down and waits for any in-flight task to finish. Safe
// to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) dispatch(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		if err := s.task(ctx); err != nil {
			s.log.Error("scheduled run failed", "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
			return
		}
		s.log.Debug("scheduled run finished", "elapsed", time.Since(start).Round(time.Millisecond))
	}()
}
