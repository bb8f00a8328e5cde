package orchestrator

import (
	"context"
	"fmt"
)

// Scheduler arranges for an execution to be advanced.
type Scheduler interface {
	Schedule(ctx context.Context, executionID string) error
}

// Advancer advances an execution until it suspends or terminates.
type Advancer interface {
	Advance(ctx context.Context, executionID string) error
}

// Inline advances executions on the calling goroutine.
type Inline struct {
	advancer Advancer
}

// Bind sets the advancer.
func (i *Inline) Bind(advancer Advancer) { i.advancer = advancer }

// Schedule advances executionID before returning.
func (i *Inline) Schedule(ctx context.Context, executionID string) error {
	if i.advancer == nil {
		return fmt.Errorf("inline scheduler is not bound")
	}
	return i.advancer.Advance(ctx, executionID)
}
