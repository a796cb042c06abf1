package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Func is one run of a periodic task. An error is logged and the task keeps its schedule.
type Func func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       Func
}

// Scheduler drives every periodic subsystem from one place so they share a
// single cancellation path. A task always finishes its current run before it
// observes cancellation.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []task
	running bool
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With(slog.String("component", "scheduler"))}
}

// Add registers a task. Tasks must be added before Run.
func (s *Scheduler) Add(name string, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("task %s: scheduler already running", name)
	}
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
	return nil
}

// Tasks returns the registered task names in registration order
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.name
	}
	return names
}

// Run blocks until ctx is cancelled and every task has returned
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	tasks := append([]task(nil), s.tasks...)
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			s.loop(ctx, t)
			return nil
		})
	}
	s.logger.Info("scheduler started", slog.Int("tasks", len(tasks)))
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				slog.String("task", t.name),
				slog.Any("panic", r))
		}
	}()
	if err := t.fn(ctx); err != nil {
		s.logger.Warn("task failed",
			slog.String("task", t.name),
			slog.String("error", err.Error()))
	}
}
