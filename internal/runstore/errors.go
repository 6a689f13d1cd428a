package runstore

import "errors"

var (
	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrWorkflowNotFound is returned when a workflow ID does not exist.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrModelNotFound is returned when a model ID does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidTransition is returned when a caller requests a status
	// change the state machine does not allow. This is a defect in the
	// caller and is rejected rather than clamped.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyTerminal is returned when completing a run that is
	// already completed or failed. It is the expected outcome of a
	// retried completion call and carries no side effects.
	ErrAlreadyTerminal = errors.New("run already in terminal state")
)
