package models

import "time"

// ExecutionState records one mastery run: the path taken through the
// graph, per-node results and the final outcome. It is created at the
// start of a run, mutated only by that run, and frozen by Complete.
type ExecutionState struct {
	MasteryName    string                 `json:"mastery_name"`
	MasteryVersion string                 `json:"mastery_version"`
	TaskID         string                 `json:"task_id"`
	StartTime      time.Time              `json:"start_time"`
	EndTime        *time.Time             `json:"end_time,omitempty"`
	ExecutionPath  []string               `json:"execution_path"`
	NodeResults    map[string]*TaskResult `json:"node_results"`
	Status         TaskStatus             `json:"status"`
	Error          string                 `json:"error,omitempty"`
	FinalResult    *TaskResult            `json:"final_result,omitempty"`
	completed      bool
}

// NewExecutionState opens the record for a run that is starting now.
func NewExecutionState(masteryName, masteryVersion, taskID string) *ExecutionState {
	return &ExecutionState{
		MasteryName:    masteryName,
		MasteryVersion: masteryVersion,
		TaskID:         taskID,
		StartTime:      time.Now(),
		ExecutionPath:  []string{},
		NodeResults:    make(map[string]*TaskResult),
		Status:         InProgressTaskStatus,
	}
}

// RecordNode appends a visited node and its result to the run.
func (s *ExecutionState) RecordNode(nodeID string, result *TaskResult) {
	if s.completed {
		return
	}
	s.ExecutionPath = append(s.ExecutionPath, nodeID)
	s.NodeResults[nodeID] = result
}

// Complete freezes the state with the run's final result. Subsequent
// mutations are ignored.
func (s *ExecutionState) Complete(final *TaskResult) {
	if s.completed {
		return
	}
	now := time.Now()
	s.EndTime = &now
	s.FinalResult = final
	if final != nil {
		s.Status = final.Status
		if final.Error != nil {
			s.Error = final.Error.Error()
		}
	} else {
		s.Status = FailedTaskStatus
	}
	s.completed = true
}

// Completed reports whether Complete has been called.
func (s *ExecutionState) Completed() bool {
	return s.completed
}

// Duration returns the elapsed run time, up to now for a run still in
// flight.
func (s *ExecutionState) Duration() time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// ToMap serializes the state for stamping into a result's metadata.
func (s *ExecutionState) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"mastery_name":    s.MasteryName,
		"mastery_version": s.MasteryVersion,
		"task_id":         s.TaskID,
		"start_time":      s.StartTime,
		"execution_path":  append([]string{}, s.ExecutionPath...),
		"status":          string(s.Status),
	}
	if s.EndTime != nil {
		m["end_time"] = *s.EndTime
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	return m
}
