package models

type TaskStatus string

const (
	PendingTaskStatus    TaskStatus = "PENDING"
	InProgressTaskStatus TaskStatus = "IN_PROGRESS"
	CompletedTaskStatus  TaskStatus = "COMPLETED"
	FailedTaskStatus     TaskStatus = "FAILED"
	ErrorTaskStatus      TaskStatus = "ERROR"
	WaitingTaskStatus    TaskStatus = "WAITING"
	CancelledTaskStatus  TaskStatus = "CANCELLED"
	RetryingTaskStatus   TaskStatus = "RETRYING"
	EvolvingTaskStatus   TaskStatus = "EVOLVING"
	DelegatedTaskStatus  TaskStatus = "DELEGATED"
)

// statusTransitions is the full transition table. Terminal states
// (COMPLETED, FAILED, CANCELLED) have no outgoing transitions.
var statusTransitions = map[TaskStatus][]TaskStatus{
	PendingTaskStatus:    {InProgressTaskStatus, CancelledTaskStatus, DelegatedTaskStatus},
	InProgressTaskStatus: {CompletedTaskStatus, FailedTaskStatus, ErrorTaskStatus, WaitingTaskStatus, CancelledTaskStatus, DelegatedTaskStatus},
	ErrorTaskStatus:      {RetryingTaskStatus, FailedTaskStatus, EvolvingTaskStatus},
	WaitingTaskStatus:    {InProgressTaskStatus, CancelledTaskStatus, DelegatedTaskStatus},
	RetryingTaskStatus:   {InProgressTaskStatus, FailedTaskStatus, ErrorTaskStatus},
	EvolvingTaskStatus:   {InProgressTaskStatus, FailedTaskStatus, ErrorTaskStatus},
	DelegatedTaskStatus:  {CompletedTaskStatus, FailedTaskStatus, ErrorTaskStatus},
	CompletedTaskStatus:  {},
	FailedTaskStatus:     {},
	CancelledTaskStatus:  {},
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case CompletedTaskStatus, FailedTaskStatus, CancelledTaskStatus:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> target is allowed.
// A same-state transition is always permitted as a no-op, terminal states
// included.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	if s == target {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}
