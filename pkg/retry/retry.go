package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
)

const (
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 60 * time.Second
)

// ErrorObserver is notified after each failed attempt, before the backoff
// sleep.
type ErrorObserver func(task *models.Task, result *models.TaskResult, attempt int)

// Scheduler re-invokes a resolver on failure according to a backoff
// strategy. It is the one component that turns repeated ERROR results
// into a terminal FAILED outcome.
type Scheduler struct {
	MaxRetries int
	backoff    *Backoff
	logger     resolver.Logger
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

func WithLogger(logger resolver.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler builds a scheduler. maxRetries <= 0 falls back to the task
// model default.
func NewScheduler(maxRetries int, strategy BackoffStrategy, base, max time.Duration, jitterFactor float64, opts ...SchedulerOption) *Scheduler {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	s := &Scheduler{
		MaxRetries: maxRetries,
		backoff:    NewBackoff(strategy, base, max, jitterFactor),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// Delay exposes the underlying backoff for attempt n.
func (s *Scheduler) Delay(attempt int) time.Duration {
	return s.backoff.Delay(attempt)
}

// ShouldRetry reports whether another attempt is warranted: never once
// retries are exhausted, the task is terminal or expired, and otherwise
// only when the last result was an ERROR.
func (s *Scheduler) ShouldRetry(task *models.Task, result *models.TaskResult) bool {
	if task.Metadata.RetryCount >= s.MaxRetries {
		return false
	}
	if task.Status.IsTerminal() {
		return false
	}
	if task.IsExpired() {
		return false
	}
	return result != nil && result.Status == models.ErrorTaskStatus
}

// ExecuteWithRetry invokes the resolver through the contract wrapper,
// retrying failed attempts with backoff until success, exhaustion, task
// expiry or context cancellation. It never panics and never returns an
// error: exhaustion yields a FAILED result recorded on the task.
func (s *Scheduler) ExecuteWithRetry(ctx context.Context, r resolver.Resolver, task *models.Task, onError ErrorObserver) *models.TaskResult {
	result := resolver.Invoke(ctx, r, task)

	for s.ShouldRetry(task, result) {
		attempt := task.Metadata.RetryCount + 1
		if onError != nil {
			onError(task, result, attempt)
		}

		delay := s.backoff.Delay(attempt)
		s.logger.Infof("Task %s attempt %d failed, retrying in %s", task.ID, attempt, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return s.fail(task, fmt.Sprintf("retry aborted: %v", ctx.Err()))
		}

		task.Metadata.RetryCount++
		task.UpdateStatus(models.RetryingTaskStatus)
		result = resolver.Invoke(ctx, r, task)
	}

	if result.Status == models.ErrorTaskStatus {
		return s.fail(task, fmt.Sprintf("task %s failed after %d retries", task.ID, task.Metadata.RetryCount))
	}
	return result
}

// fail records the terminal failure on the task and returns a FAILED
// result.
func (s *Scheduler) fail(task *models.Task, message string) *models.TaskResult {
	s.logger.Errorf("%s", message)
	taskErr := models.NewTaskError(task, models.ErrTypeMaxRetriesExceeded, message, map[string]interface{}{
		"retry_count": task.Metadata.RetryCount,
		"max_retries": s.MaxRetries,
	})
	task.UpdateStatus(models.FailedTaskStatus)
	return models.NewFailedResult(task, taskErr, message)
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}
