package models

import "fmt"

// Error taxonomy tags. The taxonomy is an open set of string tags; these
// are the ones the kernel itself relies on.
const (
	ErrTypeMissingParameter   = "missing_parameter"
	ErrTypeInvalidInput       = "invalid_input"
	ErrTypeInvalidOperation   = "invalid_operation"
	ErrTypeNotFound           = "not_found"
	ErrTypeInternalError      = "internal_error"
	ErrTypeUnexpected         = "UnexpectedError"
	ErrTypeMaxRetriesExceeded = "max_retries_exceeded"
)

// TaskResult is the outcome of a single resolver invocation. A fresh one
// is produced by every invocation and is not mutated once returned.
type TaskResult struct {
	TaskID          string                 `json:"task_id"`
	Status          TaskStatus             `json:"status"`
	OutputData      map[string]interface{} `json:"output_data"`
	ExecutionTimeMS float64                `json:"execution_time_ms"`
	Message         string                 `json:"message,omitempty"`
	Subtasks        []string               `json:"subtasks,omitempty"`
	Error           *TaskError             `json:"error,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// IsSuccess reports whether the result carries a COMPLETED status.
func (r *TaskResult) IsSuccess() bool {
	return r.Status == CompletedTaskStatus
}

// NewCompletedResult wraps output data into a COMPLETED result for a task.
func NewCompletedResult(task *Task, output map[string]interface{}, message string) *TaskResult {
	if output == nil {
		output = make(map[string]interface{})
	}
	return &TaskResult{
		TaskID:     task.ID,
		Status:     CompletedTaskStatus,
		OutputData: output,
		Message:    message,
	}
}

// TaskError is a structured, taxonomy-tagged task failure. It implements
// error so resolvers can return it directly.
type TaskError struct {
	TaskID    string                 `json:"task_id"`
	ErrorType string                 `json:"error_type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// NewTaskError constructs a TaskError against a task. Construction is not
// side-effect-free: it appends to the task's error log and drives the task
// to ERROR when the transition is legal.
func NewTaskError(task *Task, errorType, message string, details map[string]interface{}) *TaskError {
	e := &TaskError{
		TaskID:    task.ID,
		ErrorType: errorType,
		Message:   message,
		Details:   details,
	}
	d := map[string]interface{}{"error_type": errorType}
	for k, v := range details {
		d[k] = v
	}
	task.AddError(message, d)
	task.UpdateStatus(ErrorTaskStatus)
	return e
}

// NewErrorResult builds an ERROR result carrying the given task error.
func NewErrorResult(task *Task, taskErr *TaskError) *TaskResult {
	return &TaskResult{
		TaskID:     task.ID,
		Status:     ErrorTaskStatus,
		OutputData: make(map[string]interface{}),
		Message:    taskErr.Message,
		Error:      taskErr,
	}
}

// NewFailedResult builds a FAILED result, used for terminal failures such
// as retry exhaustion.
func NewFailedResult(task *Task, taskErr *TaskError, message string) *TaskResult {
	return &TaskResult{
		TaskID:     task.ID,
		Status:     FailedTaskStatus,
		OutputData: make(map[string]interface{}),
		Message:    message,
		Error:      taskErr,
	}
}
