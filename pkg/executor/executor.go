package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/masterylab/mastery/pkg/mastery"
	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/registry"
	"github.com/masterylab/mastery/pkg/resolver"
)

// DefaultHistorySize bounds the executor's in-memory run history.
const DefaultHistorySize = 100

// Executor runs named, versioned masteries out of a registry, tracking
// per-run execution state in a bounded circular history and feeding
// outcomes back into the registry's running statistics.
type Executor struct {
	registry    *registry.Registry
	historySize int
	logger      resolver.Logger

	mu      sync.RWMutex
	history []*models.ExecutionState
}

// Option customizes an Executor.
type Option func(*Executor)

func WithHistorySize(size int) Option {
	return func(e *Executor) {
		if size > 0 {
			e.historySize = size
		}
	}
}

func WithLogger(logger resolver.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func NewExecutor(reg *registry.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:    reg,
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	return e
}

// Execute looks the mastery up by name (empty version = latest), runs it
// against the task, and records state, statistics and history. A missing
// mastery yields a not_found ERROR result with no side effects.
func (e *Executor) Execute(ctx context.Context, name, version string, task *models.Task) *models.TaskResult {
	entry, ok := e.registry.Get(name, version)
	if !ok {
		e.logger.Errorf("Mastery '%s' version '%s' not found", name, version)
		taskErr := models.NewTaskError(task, models.ErrTypeNotFound,
			fmt.Sprintf("mastery '%s' not found", name),
			map[string]interface{}{"name": name, "version": version})
		return models.NewErrorResult(task, taskErr)
	}
	resolvedVersion := entry.Metadata.Version

	state := models.NewExecutionState(name, resolvedVersion, task.ID)

	var result *models.TaskResult
	if composer, ok := entry.Resolver.(*mastery.Composer); ok {
		result = composer.Execute(ctx, task, state)
	} else {
		result = resolver.Invoke(ctx, entry.Resolver, task)
	}

	state.Complete(result)
	e.registry.RecordExecution(name, resolvedVersion, result.IsSuccess(), result.ExecutionTimeMS)

	e.mu.Lock()
	e.history = append(e.history, state)
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
	e.mu.Unlock()

	if result.Metadata == nil {
		result.Metadata = make(map[string]interface{})
	}
	result.Metadata["execution_state"] = state.ToMap()

	e.logger.Infof("Executed mastery '%s' version %s for task %s: %s", name, resolvedVersion, task.ID, result.Status)
	return result
}

// ExecutionByTask returns the most recent recorded run for a task id.
func (e *Executor) ExecutionByTask(taskID string) (*models.ExecutionState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].TaskID == taskID {
			return e.history[i], true
		}
	}
	return nil, false
}

// History returns recorded runs, newest first, optionally filtered by
// mastery name and/or status, truncated to limit when limit > 0.
func (e *Executor) History(name string, status models.TaskStatus, limit int) []*models.ExecutionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*models.ExecutionState
	for i := len(e.history) - 1; i >= 0; i-- {
		s := e.history[i]
		if name != "" && s.MasteryName != name {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// HistoryLen returns the number of runs currently retained.
func (e *Executor) HistoryLen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.history)
}

// SuccessRate computes the ratio of COMPLETED runs over the retained
// history, optionally restricted to one mastery. No matching runs yields
// zero.
func (e *Executor) SuccessRate(name string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total, succeeded int
	for _, s := range e.history {
		if name != "" && s.MasteryName != name {
			continue
		}
		total++
		if s.Status == models.CompletedTaskStatus {
			succeeded++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(succeeded) / float64(total)
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}
