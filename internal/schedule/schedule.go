package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Task is a unit of work run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	// RunAtStart runs the task once immediately instead of waiting for the
	// first tick.
	RunAtStart bool
	Run        func(ctx context.Context, now time.Time)
}

// Scheduler runs tasks until Stop is called. Every task goroutine has
// exited by the time Stop returns.
type Scheduler struct {
	log   zerolog.Logger
	tasks []Task

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

func NewScheduler(logger zerolog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{log: logger, tasks: tasks}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)

	for _, task := range s.tasks {
		s.group.Go(func() error {
			s.loop(ctx, task)
			return nil
		})
	}
	s.log.Info().Int("tasks", len(s.tasks)).Msg("scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	if task.RunAtStart {
		s.runTask(ctx, task, time.Now())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runTask(ctx, task, now)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task Task, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("task", task.Name).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()

	task.Run(ctx, now)
}

// Stop cancels all tasks and waits for them to return. It is safe to call
// more than once and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.cancel == nil {
		return
	}

	s.cancel()
	s.group.Wait()
	s.cancel = nil
	s.log.Info().Msg("scheduler stopped")
}
