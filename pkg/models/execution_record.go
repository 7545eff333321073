package models

import "time"

// ExecutionRecord is the flattened, persistable form of an
// ExecutionState, exchanged with the storage boundary.
type ExecutionRecord struct {
	ID             int64      `json:"id" db:"id"`
	MasteryName    string     `json:"mastery_name" db:"mastery_name"`
	MasteryVersion string     `json:"mastery_version" db:"mastery_version"`
	TaskID         string     `json:"task_id" db:"task_id"`
	Status         string     `json:"status" db:"status"`
	ErrorMsg       string     `json:"error,omitempty" db:"error_msg"`
	ExecutionPath  []string   `json:"execution_path" db:"-"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	DurationMS     float64    `json:"duration_ms" db:"duration_ms"`
}

// NewExecutionRecord flattens a completed run for persistence.
func NewExecutionRecord(state *ExecutionState) ExecutionRecord {
	return ExecutionRecord{
		MasteryName:    state.MasteryName,
		MasteryVersion: state.MasteryVersion,
		TaskID:         state.TaskID,
		Status:         string(state.Status),
		ErrorMsg:       state.Error,
		ExecutionPath:  append([]string{}, state.ExecutionPath...),
		StartedAt:      state.StartTime,
		FinishedAt:     state.EndTime,
		DurationMS:     float64(state.Duration().Microseconds()) / 1000.0,
	}
}
