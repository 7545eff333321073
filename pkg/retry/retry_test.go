package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
	"github.com/masterylab/mastery/pkg/retry"
)

func newScheduler(maxRetries int) *retry.Scheduler {
	return retry.NewScheduler(maxRetries, retry.ConstantBackoff, time.Millisecond, 10*time.Millisecond, 0)
}

func TestShouldRetry(t *testing.T) {
	s := newScheduler(3)

	t.Run("ErrorResultRetries", func(t *testing.T) {
		task := models.NewTask("t", "", nil)
		result := &models.TaskResult{TaskID: task.ID, Status: models.ErrorTaskStatus}
		assert.True(t, s.ShouldRetry(task, result))
	})

	t.Run("CompletedDoesNot", func(t *testing.T) {
		task := models.NewTask("t", "", nil)
		result := &models.TaskResult{TaskID: task.ID, Status: models.CompletedTaskStatus}
		assert.False(t, s.ShouldRetry(task, result))
	})

	t.Run("ExhaustedRetries", func(t *testing.T) {
		task := models.NewTask("t", "", nil)
		task.Metadata.RetryCount = 3
		result := &models.TaskResult{TaskID: task.ID, Status: models.ErrorTaskStatus}
		assert.False(t, s.ShouldRetry(task, result))
	})

	t.Run("TerminalTask", func(t *testing.T) {
		task := models.NewTask("t", "", nil)
		require.True(t, task.UpdateStatus(models.CancelledTaskStatus))
		result := &models.TaskResult{TaskID: task.ID, Status: models.ErrorTaskStatus}
		assert.False(t, s.ShouldRetry(task, result))
	})

	t.Run("ExpiredTask", func(t *testing.T) {
		task := models.NewTask("t", "", nil, models.WithExpiresAt(time.Now().Add(-time.Second)))
		result := &models.TaskResult{TaskID: task.ID, Status: models.ErrorTaskStatus}
		assert.False(t, s.ShouldRetry(task, result))
	})
}

func TestExecuteWithRetryEventualSuccess(t *testing.T) {
	attempts := 0
	r := resolver.NewFunc("flaky", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient failure")
		}
		return "recovered", nil
	})
	task := models.NewTask("t", "", nil)
	s := newScheduler(3)

	var observed []int
	result := s.ExecuteWithRetry(context.Background(), r, task, func(task *models.Task, result *models.TaskResult, attempt int) {
		observed = append(observed, attempt)
	})

	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, "recovered", result.OutputData["result"])
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, observed)
	assert.Equal(t, 2, task.Metadata.RetryCount)
}

func TestExecuteWithRetryExhaustion(t *testing.T) {
	attempts := 0
	r := resolver.NewFunc("hopeless", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		attempts++
		return nil, errors.New("still broken")
	})
	task := models.NewTask("t", "", nil)
	s := newScheduler(2)

	result := s.ExecuteWithRetry(context.Background(), r, task, nil)

	assert.Equal(t, models.FailedTaskStatus, result.Status)
	assert.Equal(t, models.FailedTaskStatus, task.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, models.ErrTypeMaxRetriesExceeded, result.Error.ErrorType)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
	assert.Equal(t, 2, task.Metadata.RetryCount)
}

func TestExecuteWithRetryContextCancel(t *testing.T) {
	r := resolver.NewFunc("slowfail", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return nil, errors.New("nope")
	})
	task := models.NewTask("t", "", nil)
	s := retry.NewScheduler(5, retry.ConstantBackoff, time.Second, time.Minute, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := s.ExecuteWithRetry(ctx, r, task, nil)

	assert.Equal(t, models.FailedTaskStatus, result.Status)
	assert.Equal(t, models.FailedTaskStatus, task.Status)
}
