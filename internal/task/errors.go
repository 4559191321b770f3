package task

import "errors"

var (
	ErrUnknownTemplate   = errors.New("task: unknown template")
	ErrNoDestination     = errors.New("task: no destination")
	ErrDuplicate         = errors.New("task: duplicate")
	ErrCapacityExhausted = errors.New("task: destination capacity exhausted")
	ErrWorkerBusy        = errors.New("task: worker already owned")
	ErrMissingCapability = errors.New("task: worker lacks required capability")
	ErrBadRecord         = errors.New("task: malformed record")
)

// Reason explains why a task lost its worker or left the live set.
type Reason string

const (
	ReasonCompleted          Reason = "completed"
	ReasonStaleReference     Reason = "stale_reference"
	ReasonRequirementNotMet  Reason = "requirement_not_met"
	ReasonExecutionRejected  Reason = "execution_rejected"
	ReasonExecutionFault     Reason = "execution_fault"
	ReasonCapacityExhausted  Reason = "capacity_exhausted"
	ReasonTriggerCleared     Reason = "trigger_cleared"
	ReasonPreempted          Reason = "preempted"
	ReasonInvalidDestination Reason = "invalid_destination"
)

// Retryable reports whether the instance stays in the live set after losing
// its worker for this reason.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonRequirementNotMet, ReasonExecutionRejected, ReasonExecutionFault,
		ReasonTriggerCleared, ReasonPreempted, ReasonCapacityExhausted:
		return true
	default:
		return false
	}
}
