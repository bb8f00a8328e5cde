package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutionNotFound is returned when an execution is not active.
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrTerminalExecution is returned when a terminal execution is asked to change.
	ErrTerminalExecution = fmt.Errorf("%w: execution is terminal", ErrExecutionNotFound)
	// ErrGlobalTimeout is recorded when an execution exceeds its global timeout.
	ErrGlobalTimeout = errors.New("workflow timeout exceeded")
	// ErrInterrupted is recorded for executions found mid-step after a restart.
	ErrInterrupted = errors.New("execution interrupted by restart")
)
