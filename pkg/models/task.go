package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultMaxRetries = 3

// TaskMetadata carries the bookkeeping attached to every task.
type TaskMetadata struct {
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Owner             string     `json:"owner,omitempty"`
	Priority          int        `json:"priority"`
	Depth             int        `json:"depth"`
	Tags              []string   `json:"tags,omitempty"`
	Source            string     `json:"source,omitempty"`
	TimeoutSeconds    int        `json:"timeout_seconds,omitempty"`
	RetryCount        int        `json:"retry_count"`
	MaxRetries        int        `json:"max_retries"`
	RetryDelaySeconds int        `json:"retry_delay_seconds,omitempty"`
	EvolutionCount    int        `json:"evolution_count"`
	ParentTaskID      string     `json:"parent_task_id,omitempty"`
	Resolver          string     `json:"resolver,omitempty"` // explicit resolver-targeting hint
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// StatusChange is a single entry in a task's status history.
type StatusChange struct {
	Timestamp  time.Time   `json:"timestamp"`
	FromStatus *TaskStatus `json:"from_status"` // nil for the construction record
	ToStatus   TaskStatus  `json:"to_status"`
}

// ErrorRecord is an entry in a task's error log.
type ErrorRecord struct {
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ResultRecord is an entry in a task's result log.
type ResultRecord struct {
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Task is the unit of work flowing through the kernel. A task is owned by
// its creator until handed to a resolver; resolvers mutate it in place
// during invocation, but only through UpdateStatus, AddError and AddResult.
type Task struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Status      TaskStatus             `json:"status"`
	InputData   map[string]interface{} `json:"input_data"`
	Metadata    TaskMetadata           `json:"metadata"`
	Context     map[string]interface{} `json:"context,omitempty"`
	History     []StatusChange         `json:"history"`
	Errors      []ErrorRecord          `json:"errors,omitempty"`
	Results     []ResultRecord         `json:"results,omitempty"`
}

// TaskOption customizes a task at construction.
type TaskOption func(*Task)

func WithOwner(owner string) TaskOption {
	return func(t *Task) { t.Metadata.Owner = owner }
}

func WithPriority(priority int) TaskOption {
	return func(t *Task) { t.Metadata.Priority = priority }
}

func WithTags(tags ...string) TaskOption {
	return func(t *Task) { t.Metadata.Tags = append(t.Metadata.Tags, tags...) }
}

func WithTimeout(seconds int) TaskOption {
	return func(t *Task) { t.Metadata.TimeoutSeconds = seconds }
}

func WithMaxRetries(n int) TaskOption {
	return func(t *Task) { t.Metadata.MaxRetries = n }
}

func WithResolverHint(name string) TaskOption {
	return func(t *Task) { t.Metadata.Resolver = name }
}

func WithParentTask(parentID string) TaskOption {
	return func(t *Task) { t.Metadata.ParentTaskID = parentID }
}

func WithExpiresAt(at time.Time) TaskOption {
	return func(t *Task) { t.Metadata.ExpiresAt = &at }
}

// NewTask constructs a task in PENDING status and writes the initial
// history record. ExpiresAt is derived once here from TimeoutSeconds when
// not explicitly supplied; it is never recomputed afterward.
func NewTask(name, description string, input map[string]interface{}, opts ...TaskOption) *Task {
	now := time.Now()
	if input == nil {
		input = make(map[string]interface{})
	}
	t := &Task{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      PendingTaskStatus,
		InputData:   input,
		Context:     make(map[string]interface{}),
		Metadata: TaskMetadata{
			CreatedAt:  now,
			UpdatedAt:  now,
			MaxRetries: DefaultMaxRetries,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.Metadata.ExpiresAt == nil && t.Metadata.TimeoutSeconds > 0 {
		expires := now.Add(time.Duration(t.Metadata.TimeoutSeconds) * time.Second)
		t.Metadata.ExpiresAt = &expires
	}
	t.History = append(t.History, StatusChange{
		Timestamp:  now,
		FromStatus: nil,
		ToStatus:   PendingTaskStatus,
	})
	return t
}

// UpdateStatus is the only way a task's status changes. It mutates the
// status and appends the history record together; illegal transitions are
// rejected by returning false, never by an error.
func (t *Task) UpdateStatus(target TaskStatus) bool {
	if !t.Status.CanTransitionTo(target) {
		return false
	}
	from := t.Status
	t.History = append(t.History, StatusChange{
		Timestamp:  time.Now(),
		FromStatus: &from,
		ToStatus:   target,
	})
	t.Status = target
	t.Metadata.UpdatedAt = time.Now()
	return true
}

// AddError appends an error record.
func (t *Task) AddError(message string, details map[string]interface{}) {
	t.Errors = append(t.Errors, ErrorRecord{
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	})
	t.Metadata.UpdatedAt = time.Now()
}

// AddResult appends a result record.
func (t *Task) AddResult(data map[string]interface{}) {
	t.Results = append(t.Results, ResultRecord{
		Data:      data,
		Timestamp: time.Now(),
	})
	t.Metadata.UpdatedAt = time.Now()
}

// IsExpired reports whether the task has outlived its ExpiresAt deadline.
// Tasks without a deadline never expire.
func (t *Task) IsExpired() bool {
	if t.Metadata.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*t.Metadata.ExpiresAt)
}

// ResolverHint returns the explicit resolver-targeting hint, if any,
// checking metadata first and the auxiliary context second.
func (t *Task) ResolverHint() string {
	if t.Metadata.Resolver != "" {
		return t.Metadata.Resolver
	}
	if v, ok := t.Context["resolver"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if v, ok := t.InputData["resolver"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
