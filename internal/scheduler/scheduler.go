package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/courierai/courier/internal/metrics"
	"github.com/courierai/courier/pkg/models"
)

// Executor carries out a due task. Implementations must be safe for
// concurrent use; multiple due tasks fire in parallel.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) error
}

// Scheduler polls the store and fires due tasks.
type Scheduler struct {
	store    *Store
	executor Executor
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTickInterval overrides the 5s polling interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a scheduler over the given store and executor.
func New(store *Store, executor Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		executor: executor,
		interval: 5 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "tasks", s.store.Count())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every due task once. Exposed for tests and the run-now API.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, task := range s.store.Due(s.now()) {
		go s.fire(ctx, task)
	}
}

// Fire executes a single task immediately, regardless of its schedule. The
// run is detached from the caller's context: a returning HTTP handler or a
// finished tool call must not cancel the execution mid-flight.
func (s *Scheduler) Fire(ctx context.Context, task *models.Task) {
	go s.fire(context.WithoutCancel(ctx), task)
}

func (s *Scheduler) fire(ctx context.Context, task *models.Task) {
	logger := s.logger.With("task", task.ID, "type", task.TaskType)
	logger.Info("executing task", "user", task.UserID, "runs", task.RunCount)

	if err := s.executor.Execute(ctx, task); err != nil {
		// Leave the task due; it retries on the next tick.
		metrics.SchedulerRuns.WithLabelValues(string(task.TaskType), "error").Inc()
		logger.Error("task execution failed", "error", err)
		return
	}
	metrics.SchedulerRuns.WithLabelValues(string(task.TaskType), "ok").Inc()
	s.store.MarkRun(task.ID)
}
