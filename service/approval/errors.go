package approval

import "errors"

var (
	// ErrNotFound is returned for unknown or already resolved handles.
	ErrNotFound = errors.New("approval not found")
	// ErrRejected is recorded when an approver rejects a gate.
	ErrRejected = errors.New("approval rejected")
	// ErrExpired is recorded when a gate times out before quorum.
	ErrExpired = errors.New("approval timeout expired")
	// ErrDuplicateApprover is returned when an approver decides twice.
	ErrDuplicateApprover = errors.New("approver already recorded a decision")
)
