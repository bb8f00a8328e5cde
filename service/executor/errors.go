package executor

import "errors"

var (
	// ErrStepTimeout is recorded when a step exceeds its timeout.
	ErrStepTimeout = errors.New("step timeout")
	// ErrActionExecution is recorded when the action executor reports a failure.
	ErrActionExecution = errors.New("action execution failed")
)
