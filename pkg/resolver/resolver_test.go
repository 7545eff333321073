package resolver_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
)

func TestInvokeWrapsRawValue(t *testing.T) {
	r := resolver.NewFunc("echo", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return "hello", nil
	})
	task := models.NewTask("t", "", nil)

	result := resolver.Invoke(context.Background(), r, task)

	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, "hello", result.OutputData["result"])
	assert.Equal(t, task.ID, result.TaskID)
	assert.Equal(t, models.CompletedTaskStatus, task.Status)
	require.Len(t, task.Results, 1)
}

func TestInvokePassesThroughTaskResult(t *testing.T) {
	r := resolver.NewFunc("direct", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return models.NewCompletedResult(task, map[string]interface{}{"n": 42}, "done"), nil
	})
	task := models.NewTask("t", "", nil)

	result := resolver.Invoke(context.Background(), r, task)

	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, 42, result.OutputData["n"])
	assert.Equal(t, "done", result.Message)
	assert.Greater(t, result.ExecutionTimeMS, 0.0)
}

func TestInvokeMapOutput(t *testing.T) {
	r := resolver.NewFunc("mapper", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return map[string]interface{}{"a": 1, "b": 2}, nil
	})
	task := models.NewTask("t", "", nil)

	result := resolver.Invoke(context.Background(), r, task)

	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, 1, result.OutputData["a"])
	assert.Equal(t, 2, result.OutputData["b"])
}

func TestInvokeTypedTaskError(t *testing.T) {
	r := resolver.NewFunc("strict", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return nil, models.NewTaskError(task, models.ErrTypeMissingParameter, "url is required", nil)
	})
	task := models.NewTask("t", "", nil)

	result := resolver.Invoke(context.Background(), r, task)

	assert.Equal(t, models.ErrorTaskStatus, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, models.ErrTypeMissingParameter, result.Error.ErrorType)
	assert.Equal(t, models.ErrorTaskStatus, task.Status)
	assert.NotEmpty(t, task.Errors)
}

func TestInvokeGenericError(t *testing.T) {
	r := resolver.NewFunc("flaky", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return nil, errors.New("connection reset")
	})
	task := models.NewTask("t", "", nil)

	result := resolver.Invoke(context.Background(), r, task)

	assert.Equal(t, models.ErrorTaskStatus, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, models.ErrTypeUnexpected, result.Error.ErrorType)
	assert.Contains(t, result.Error.Message, "connection reset")
	assert.Contains(t, result.Error.Details, "stack")
}

func TestInvokeRecoversPanic(t *testing.T) {
	r := resolver.NewFunc("bomb", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		panic("boom")
	})
	task := models.NewTask("t", "", nil)

	var result *models.TaskResult
	assert.NotPanics(t, func() {
		result = resolver.Invoke(context.Background(), r, task)
	})

	require.NotNil(t, result)
	assert.Equal(t, models.ErrorTaskStatus, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, models.ErrTypeUnexpected, result.Error.ErrorType)
	assert.Contains(t, result.Error.Message, "boom")
	assert.Equal(t, models.ErrorTaskStatus, task.Status)
}

func TestDefaultCanHandle(t *testing.T) {
	r := resolver.NewFunc("summarize", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return nil, nil
	})

	hinted := models.NewTask("t", "", nil, models.WithResolverHint("summarize"))
	other := models.NewTask("t", "", nil, models.WithResolverHint("translate"))
	unhinted := models.NewTask("t", "", nil)

	assert.True(t, r.CanHandle(hinted))
	assert.False(t, r.CanHandle(other))
	assert.False(t, r.CanHandle(unhinted))
}

func TestHealthCheck(t *testing.T) {
	healthy := resolver.NewFunc("ok", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return "pong", nil
	})
	failing := resolver.NewFunc("down", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return nil, errors.New("unavailable")
	})
	panicking := resolver.NewFunc("crash", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		panic("nope")
	})

	ctx := context.Background()
	assert.True(t, healthy.HealthCheck(ctx))
	assert.False(t, failing.HealthCheck(ctx))
	assert.False(t, panicking.HealthCheck(ctx))
}
