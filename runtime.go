package remediator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/event"
	"github.com/viant/remediator/service/orchestrator"
	"github.com/viant/remediator/service/processor"
	"github.com/viant/remediator/tracing"
	"go.uber.org/zap"
)

// Runtime represents a running remediation engine
type Runtime struct {
	orchestrator  *orchestrator.Service
	processor     *processor.Service
	events        *event.Service
	sweepInterval time.Duration
	logger        *zap.Logger
	closeFn       func()
	tracing       bool

	mux       sync.Mutex
	stopSweep func()
	started   bool
}

// Start recovers checkpointed executions, then starts workers and the
// approval expiry sweeper.
func (r *Runtime) Start(ctx context.Context) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.started {
		return nil
	}
	recovery, err := r.orchestrator.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover executions: %w", err)
	}
	if recovery.Restored+recovery.Interrupted+recovery.Finalized > 0 {
		r.logger.Info("recovered executions",
			zap.Int("restored", recovery.Restored),
			zap.Int("interrupted", recovery.Interrupted),
			zap.Int("finalized", recovery.Finalized))
	}
	if err = r.processor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processor: %w", err)
	}
	r.stopSweep = approval.StartSweeper(ctx, r.sweepInterval, r.orchestrator.Sweep, clock.Now)
	r.started = true
	return nil
}

// Shutdown stops the sweeper and workers, drains pending events and
// releases store connections.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.stopSweep != nil {
		r.stopSweep()
		r.stopSweep = nil
	}
	r.processor.Shutdown()
	if err := r.events.Shutdown(ctx); err != nil {
		r.logger.Warn("event dispatcher did not drain", zap.Error(err))
	}
	if r.closeFn != nil {
		r.closeFn()
	}
	r.started = false
	if r.tracing {
		return tracing.Shutdown(ctx)
	}
	return nil
}

// StartExecution starts a workflow execution; steps run on the worker pool
func (r *Runtime) StartExecution(ctx context.Context, request *orchestrator.StartRequest) (*execution.Execution, error) {
	return r.orchestrator.Start(ctx, request)
}

// Status returns an execution visible to organizationID, or nil
func (r *Runtime) Status(ctx context.Context, executionID, organizationID string) (*execution.Execution, error) {
	return r.orchestrator.Status(ctx, executionID, organizationID)
}

// List returns a page of executions
func (r *Runtime) List(ctx context.Context, query *orchestrator.Query) (*orchestrator.Page, error) {
	return r.orchestrator.List(ctx, query)
}

// Cancel cancels an active execution
func (r *Runtime) Cancel(ctx context.Context, executionID, actorID, reason string) (*execution.Execution, error) {
	return r.orchestrator.Cancel(ctx, executionID, actorID, reason)
}

// ProcessApproval records an approval decision
func (r *Runtime) ProcessApproval(ctx context.Context, request *approval.Request) (*approval.Outcome, error) {
	return r.orchestrator.ProcessApproval(ctx, request)
}

// Resume reschedules a running execution
func (r *Runtime) Resume(ctx context.Context, executionID string) error {
	return r.orchestrator.Resume(ctx, executionID)
}

// Recover rebuilds active executions from checkpoints
func (r *Runtime) Recover(ctx context.Context) (*orchestrator.Recovery, error) {
	return r.orchestrator.Recover(ctx)
}

// Wait polls an execution until it is terminal or awaiting approval.
func (r *Runtime) Wait(ctx context.Context, executionID, organizationID string, timeout time.Duration) (*execution.Execution, error) {
	deadline := time.Now().Add(timeout)
	for {
		anExecution, err := r.orchestrator.Status(ctx, executionID, organizationID)
		if err != nil {
			return nil, err
		}
		if anExecution == nil {
			return nil, fmt.Errorf("%w: %s", orchestrator.ErrExecutionNotFound, executionID)
		}
		if anExecution.Status.IsTerminal() || anExecution.Status == execution.StatusAwaitingApproval {
			return anExecution, nil
		}
		if time.Now().After(deadline) {
			return anExecution, fmt.Errorf("timeout waiting for execution %q", executionID)
		}
		select {
		case <-ctx.Done():
			return anExecution, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
