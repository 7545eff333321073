package resolver

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/masterylab/mastery/pkg/models"
)

// Logger defines the logging interface used across the kernel packages.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Resolver is a pluggable handler that consumes a Task and produces a
// result. Resolve may return a *models.TaskResult or any raw value; raw
// values are wrapped into COMPLETED results by Invoke. A resolver must not
// mutate a task it did not create except through the task's own mutators.
type Resolver interface {
	Metadata() *models.ResolverMetadata
	Resolve(ctx context.Context, task *models.Task) (interface{}, error)
	CanHandle(task *models.Task) bool
	HealthCheck(ctx context.Context) bool
}

// Base provides the default CanHandle and HealthCheck behavior. Concrete
// resolvers embed it and supply Resolve.
type Base struct {
	Meta *models.ResolverMetadata
}

func NewBase(name, version, description string) Base {
	return Base{Meta: models.NewResolverMetadata(name, version, description)}
}

func (b *Base) Metadata() *models.ResolverMetadata {
	return b.Meta
}

// CanHandle matches on an explicit resolver-name hint carried by the task.
// Resolvers with broader discovery rules override this.
func (b *Base) CanHandle(task *models.Task) bool {
	return task.ResolverHint() == b.Meta.Name
}

// Func adapts a plain function into a Resolver.
type Func struct {
	Base
	Fn func(ctx context.Context, task *models.Task) (interface{}, error)
}

// NewFunc wraps fn as a resolver with the given identity.
func NewFunc(name, version string, fn func(ctx context.Context, task *models.Task) (interface{}, error)) *Func {
	return &Func{Base: NewBase(name, version, ""), Fn: fn}
}

func (f *Func) Resolve(ctx context.Context, task *models.Task) (interface{}, error) {
	return f.Fn(ctx, task)
}

// HealthCheck synthesizes a trivial self-test task and runs it through
// Resolve; any error or panic marks the resolver unhealthy.
func (f *Func) HealthCheck(ctx context.Context) bool {
	return RunHealthCheck(ctx, f)
}

// RunHealthCheck is the default health-check body: a throwaway task
// through the resolver's Resolve, failure or panic meaning unhealthy.
// Embedders that cannot call it through their own method set (Base has no
// Resolve) call it explicitly.
func RunHealthCheck(ctx context.Context, r Resolver) (healthy bool) {
	defer func() {
		if rec := recover(); rec != nil {
			healthy = false
		}
	}()
	probe := models.NewTask("health_check", "resolver self-test", map[string]interface{}{
		"health_check": true,
	})
	if _, err := r.Resolve(ctx, probe); err != nil {
		return false
	}
	return true
}

// Invoke is the single seam through which other components call a
// resolver. It transitions the task to IN_PROGRESS, times the call, and
// guarantees that no error or panic escapes: typed task errors and
// unexpected failures alike come back as structured ERROR results
// recorded on the task.
func Invoke(ctx context.Context, r Resolver, task *models.Task) (result *models.TaskResult) {
	task.UpdateStatus(models.InProgressTaskStatus)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			taskErr := models.NewTaskError(task, models.ErrTypeUnexpected,
				fmt.Sprintf("panic in resolver %s: %v", r.Metadata().Name, rec),
				map[string]interface{}{"stack": string(debug.Stack())})
			result = models.NewErrorResult(task, taskErr)
			result.ExecutionTimeMS = elapsedMS(start)
		}
	}()

	out, err := r.Resolve(ctx, task)
	elapsed := elapsedMS(start)

	if err != nil {
		taskErr, ok := err.(*models.TaskError)
		if !ok {
			taskErr = models.NewTaskError(task, models.ErrTypeUnexpected, err.Error(),
				map[string]interface{}{"stack": string(debug.Stack())})
		} else if taskErr.TaskID != task.ID {
			// A typed error raised against another task still needs
			// recording on this one.
			task.AddError(taskErr.Message, map[string]interface{}{"error_type": taskErr.ErrorType})
		}
		task.UpdateStatus(models.ErrorTaskStatus)
		result = models.NewErrorResult(task, taskErr)
		result.ExecutionTimeMS = elapsed
		return result
	}

	if res, ok := out.(*models.TaskResult); ok {
		if res.TaskID == "" {
			res.TaskID = task.ID
		}
		if res.ExecutionTimeMS == 0 {
			res.ExecutionTimeMS = elapsed
		}
		task.UpdateStatus(res.Status)
		return res
	}

	output := map[string]interface{}{}
	if m, ok := out.(map[string]interface{}); ok {
		output = m
	} else if out != nil {
		output["result"] = out
	}
	result = models.NewCompletedResult(task, output, "")
	result.ExecutionTimeMS = elapsed
	task.UpdateStatus(models.CompletedTaskStatus)
	task.AddResult(output)
	return result
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
