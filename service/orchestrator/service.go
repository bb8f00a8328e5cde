// Package orchestrator drives workflow executions through their steps. It
// keeps the active execution registry, serialises every mutation of an
// execution behind a per execution lock, checkpoints after every transition
// and writes the terminal record exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/internal/idgen"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/execution/memory"
	"github.com/viant/remediator/service/event"
	"github.com/viant/remediator/service/rollback"
	"github.com/viant/remediator/tracing"
	"go.uber.org/zap"
)

// Compiler resolves a playbook into a definition.
type Compiler interface {
	Compile(ctx context.Context, playbookID, organizationID string) (*model.Definition, error)
}

// StepExecutor runs one step.
type StepExecutor interface {
	Execute(ctx context.Context, anExecution *execution.Execution, step *model.Step) *execution.StepResult
}

// Compensator rolls back completed steps.
type Compensator interface {
	Compensate(ctx context.Context, anExecution *execution.Execution, definition *model.Definition) *rollback.Report
}

// StartRequest triggers an execution.
type StartRequest struct {
	WorkflowID     string                 `json:"workflowId"`
	OrganizationID string                 `json:"organizationId"`
	TriggeredBy    string                 `json:"triggeredBy"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Target         *execution.Target      `json:"target,omitempty"`
	DryRun         bool                   `json:"dryRun,omitempty"`
	// Definition runs an ad hoc definition instead of compiling WorkflowID
	Definition *model.Definition `json:"definition,omitempty"`
}

// Service is the execution orchestrator.
type Service struct {
	compiler    Compiler
	executor    StepExecutor
	gate        *approval.Service
	compensator Compensator
	checkpoints dao.Service[string, execution.Execution]
	records     dao.Service[string, execution.Execution]
	publisher   event.Publisher
	scheduler   Scheduler
	logger      *zap.Logger
	active      *registry
}

// New creates an orchestrator.
func New(compiler Compiler, executor StepExecutor, gate *approval.Service, compensator Compensator, options ...Option) *Service {
	ret := &Service{
		compiler:    compiler,
		executor:    executor,
		gate:        gate,
		compensator: compensator,
		logger:      zap.NewNop(),
		active:      newRegistry(),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.checkpoints == nil {
		ret.checkpoints = memory.New()
	}
	if ret.records == nil {
		ret.records = memory.New()
	}
	if ret.scheduler == nil {
		ret.scheduler = &Inline{}
	}
	if inline, ok := ret.scheduler.(*Inline); ok && inline.advancer == nil {
		inline.Bind(ret)
	}
	return ret
}

// Active returns the number of active executions.
func (s *Service) Active() int { return s.active.size() }

// Start creates an execution in status running and schedules it.
func (s *Service) Start(ctx context.Context, request *StartRequest) (*execution.Execution, error) {
	if request == nil {
		return nil, fmt.Errorf("start request is required")
	}
	if request.OrganizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	definition, err := s.definition(ctx, request)
	if err != nil {
		return nil, err
	}
	now := clock.Now()
	anExecution := &execution.Execution{
		ID:             idgen.New(),
		WorkflowID:     definition.ID,
		OrganizationID: request.OrganizationID,
		Definition:     definition,
		Status:         execution.StatusRunning,
		Context:        map[string]interface{}{},
		StepResults:    []*execution.StepResult{},
		StartedAt:      now,
		UpdatedAt:      now,
		TriggeredBy:    request.TriggeredBy,
		Target:         request.Target,
	}
	for k, v := range request.Context {
		anExecution.Context[k] = v
	}
	if request.DryRun {
		anExecution.Context[execution.ContextDryRun] = true
	}
	if request.Target != nil {
		anExecution.Context["targetType"] = request.Target.Type
		anExecution.Context["targetId"] = request.Target.ID
	}
	e := s.active.put(anExecution)
	s.checkpoint(ctx, e)
	s.logger.Info("execution started",
		zap.String("execution_id", anExecution.ID),
		zap.String("workflow_id", anExecution.WorkflowID),
		zap.String("org_id", anExecution.OrganizationID),
		zap.Bool("dry_run", anExecution.IsDryRun()))
	s.publish(ctx, event.NewEvent(anExecution, "", &event.ExecutionStarted{
		WorkflowName: definition.Name,
		TriggeredBy:  request.TriggeredBy,
		Target:       request.Target,
		DryRun:       anExecution.IsDryRun(),
		Steps:        len(definition.Steps),
	}).WithActor(request.TriggeredBy))

	if err := s.scheduler.Schedule(ctx, anExecution.ID); err != nil {
		return nil, fmt.Errorf("failed to schedule execution %s: %w", anExecution.ID, err)
	}
	return s.snapshot(ctx, anExecution.ID)
}

func (s *Service) definition(ctx context.Context, request *StartRequest) (*model.Definition, error) {
	if request.Definition != nil {
		if issues := request.Definition.Validate(); len(issues) > 0 {
			return nil, fmt.Errorf("invalid workflow definition %s: %w", request.Definition.ID, errors.Join(issues...))
		}
		return request.Definition, nil
	}
	if s.compiler == nil {
		return nil, fmt.Errorf("compiler is not configured")
	}
	return s.compiler.Compile(ctx, request.WorkflowID, request.OrganizationID)
}

// Advance runs steps of a running execution until it suspends, terminates
// or is cancelled. Executions in any other status are left untouched.
func (s *Service) Advance(ctx context.Context, executionID string) error {
	e := s.active.get(executionID)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	ctx = context.WithoutCancel(ctx)

	e.mux.Lock()
	defer e.mux.Unlock()
	anExecution := e.execution
	ctx, span := tracing.StartExecution(ctx, executionID, anExecution.OrganizationID)
	defer span.End(nil)
	if anExecution.Status != execution.StatusRunning {
		return nil
	}
	definition := anExecution.Definition
	children := definition.ParallelChildren()

	for {
		if e.cancelled.Load() {
			return nil
		}
		deadline := anExecution.Deadline()
		if !deadline.IsZero() && !clock.Now().Before(deadline) {
			s.fail(ctx, e, fmt.Errorf("%w: %s", ErrGlobalTimeout, definition.Timeout), definition.RollbackOnFailure)
			return nil
		}
		index := anExecution.CurrentStep
		if index >= len(definition.Steps) {
			anExecution.Status = execution.StatusCompleted
			s.finish(ctx, e)
			return nil
		}
		step := definition.Steps[index]
		if _, ok := children[step.ID]; ok {
			anExecution.CurrentStep++
			continue
		}

		result := s.run(ctx, e, step, deadline)
		anExecution.StepResults = append(anExecution.StepResults, result)
		if e.cancelled.Load() {
			return nil
		}
		s.publishOutcome(ctx, anExecution, result)

		switch result.Status {
		case execution.StepAwaitingApproval:
			anExecution.Status = execution.StatusAwaitingApproval
			s.checkpoint(ctx, e)
			return nil
		case execution.StepFailed:
			if !deadline.IsZero() && !clock.Now().Before(deadline) {
				s.fail(ctx, e, fmt.Errorf("%w: %s", ErrGlobalTimeout, definition.Timeout), definition.RollbackOnFailure)
				return nil
			}
			cause := fmt.Errorf("step %s failed: %s", step.ID, result.Error)
			switch step.OnFailure {
			case model.PolicyContinue:
				anExecution.CurrentStep = index + 1
			case model.PolicyRollback:
				s.fail(ctx, e, cause, true)
				return nil
			default:
				s.fail(ctx, e, cause, definition.RollbackOnFailure)
				return nil
			}
		default:
			anExecution.CurrentStep = s.next(anExecution, index, step, result, children)
		}
		s.checkpoint(ctx, e)
	}
}

// run executes step bounded by the global deadline; Cancel interrupts it.
func (s *Service) run(ctx context.Context, e *entry, step *model.Step, deadline time.Time) *execution.StepResult {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline.IsZero() {
		runCtx, cancel = context.WithCancel(ctx)
	} else {
		runCtx, cancel = context.WithDeadline(ctx, deadline)
	}
	e.setRunCancel(cancel)
	if e.cancelled.Load() {
		cancel()
	}
	defer func() {
		e.setRunCancel(nil)
		cancel()
	}()
	return s.executor.Execute(runCtx, e.execution, step)
}

// next returns the index of the step following index, applying condition
// jumps. Steps jumped over are recorded as skipped.
func (s *Service) next(anExecution *execution.Execution, index int, step *model.Step, result *execution.StepResult, children map[string]string) int {
	if step.Kind() != model.KindCondition || result.Output == nil {
		return index + 1
	}
	target, _ := result.Output["next"].(string)
	if target == "" {
		return index + 1
	}
	definition := anExecution.Definition
	targetIndex := definition.IndexOf(target)
	if targetIndex <= index {
		return index + 1
	}
	now := clock.Now()
	for i := index + 1; i < targetIndex; i++ {
		skipped := definition.Steps[i]
		if _, ok := children[skipped.ID]; ok {
			continue
		}
		anExecution.StepResults = append(anExecution.StepResults, &execution.StepResult{
			StepID:      skipped.ID,
			StepName:    skipped.Name,
			Kind:        skipped.Kind(),
			Status:      execution.StepSkipped,
			CompletedAt: &now,
		})
	}
	return targetIndex
}

// fail marks the execution failed and, when compensate is set, runs the
// compensator and ends the execution rolled back.
func (s *Service) fail(ctx context.Context, e *entry, cause error, compensate bool) {
	anExecution := e.execution
	anExecution.Status = execution.StatusFailed
	anExecution.Error = cause.Error()
	s.logger.Warn("execution failed",
		zap.String("execution_id", anExecution.ID),
		zap.String("org_id", anExecution.OrganizationID),
		zap.Bool("rollback", compensate),
		zap.Error(cause))
	if compensate && s.compensator != nil {
		s.checkpoint(ctx, e)
		report := s.compensator.Compensate(ctx, anExecution, anExecution.Definition)
		if err := report.Err(); err != nil {
			anExecution.RollbackError = err.Error()
		}
		anExecution.Status = execution.StatusRolledBack
	}
	s.finish(ctx, e)
}

// finish persists the terminal record once and drops the execution from the
// active registry.
func (s *Service) finish(ctx context.Context, e *entry) {
	anExecution := e.execution
	now := clock.Now()
	anExecution.CompletedAt = &now
	anExecution.UpdatedAt = now
	if s.gate != nil {
		s.gate.Discard(ctx, anExecution.ID)
	}
	e.snapshot.Store(anExecution.Clone())
	if err := s.records.Save(ctx, anExecution); err != nil {
		s.logger.Error("failed to save execution record", zap.String("execution_id", anExecution.ID), zap.Error(err))
	} else if err := s.checkpoints.Delete(ctx, anExecution.ID); err != nil && !errors.Is(err, dao.ErrNotFound) {
		s.logger.Warn("failed to delete checkpoint", zap.String("execution_id", anExecution.ID), zap.Error(err))
	}
	s.active.remove(anExecution.ID)

	duration := now.Sub(anExecution.StartedAt)
	s.logger.Info("execution finished",
		zap.String("execution_id", anExecution.ID),
		zap.String("status", string(anExecution.Status)),
		zap.Duration("duration", duration))
	if anExecution.Status == execution.StatusCancelled {
		s.publish(ctx, event.NewEvent(anExecution, "", &event.ExecutionCancelled{Reason: anExecution.CancelReason}).WithActor(anExecution.CancelledBy))
		return
	}
	definition := anExecution.Definition
	s.publish(ctx, event.NewEvent(anExecution, "", &event.ExecutionFinished{
		Status:           anExecution.Status,
		Error:            anExecution.Error,
		Duration:         duration,
		NotifyOnComplete: definition.NotifyOnComplete,
		NotifyOnFailure:  definition.NotifyOnFailure,
	}))
}

// checkpoint persists the active execution after a transition.
func (s *Service) checkpoint(ctx context.Context, e *entry) {
	anExecution := e.execution
	anExecution.UpdatedAt = clock.Now()
	e.snapshot.Store(anExecution.Clone())
	if err := s.checkpoints.Save(ctx, anExecution); err != nil {
		s.logger.Error("failed to checkpoint execution", zap.String("execution_id", anExecution.ID), zap.Error(err))
	}
}

// Cancel stops an active execution. Cancellation never compensates.
func (s *Service) Cancel(ctx context.Context, executionID, actorID, reason string) (*execution.Execution, error) {
	e := s.active.get(executionID)
	if e == nil {
		if _, err := s.records.Load(ctx, executionID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrTerminalExecution, executionID)
		}
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	e.cancelled.Store(true)
	e.interrupt()

	e.mux.Lock()
	defer e.mux.Unlock()
	anExecution := e.execution
	if anExecution.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminalExecution, executionID)
	}
	ctx = context.WithoutCancel(ctx)
	anExecution.Status = execution.StatusCancelled
	anExecution.CancelledBy = actorID
	anExecution.CancelReason = reason
	if result := anExecution.PendingResult(); result != nil {
		now := clock.Now()
		result.Status = execution.StepSkipped
		result.CompletedAt = &now
	}
	s.finish(ctx, e)
	return anExecution.Clone(), nil
}

// ProcessApproval applies an approver decision. Reaching quorum resumes the
// execution at the step after the gate; a rejection fails it.
func (s *Service) ProcessApproval(ctx context.Context, request *approval.Request) (*approval.Outcome, error) {
	pending, err := s.gate.Lookup(ctx, request.Handle)
	if err != nil {
		return nil, err
	}
	e := s.active.get(pending.ExecutionID)
	if e == nil {
		s.gate.Resolve(ctx, pending.Handle)
		return nil, fmt.Errorf("%w: %s", approval.ErrNotFound, request.Handle)
	}
	ctx = context.WithoutCancel(ctx)

	e.mux.Lock()
	outcome, resumed, err := s.decide(ctx, e, request)
	e.mux.Unlock()
	if err != nil || !resumed {
		return outcome, err
	}
	if err := s.Resume(ctx, pending.ExecutionID); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Resume schedules a running execution to advance from its current step.
func (s *Service) Resume(ctx context.Context, executionID string) error {
	e := s.active.get(executionID)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if snapshot := e.snapshot.Load(); snapshot != nil && snapshot.Status != execution.StatusRunning {
		return fmt.Errorf("execution %s is %s", executionID, snapshot.Status)
	}
	if err := s.scheduler.Schedule(ctx, executionID); err != nil {
		return fmt.Errorf("failed to resume execution %s: %w", executionID, err)
	}
	return nil
}

// decide runs under the execution lock.
func (s *Service) decide(ctx context.Context, e *entry, request *approval.Request) (*approval.Outcome, bool, error) {
	pending, err := s.gate.Lookup(ctx, request.Handle)
	if err != nil {
		return nil, false, err
	}
	anExecution := e.execution
	result := anExecution.PendingResult()
	if anExecution.Status != execution.StatusAwaitingApproval || result == nil || result.ApprovalHandle != pending.Handle {
		return nil, false, fmt.Errorf("%w: %s", approval.ErrNotFound, request.Handle)
	}
	step := anExecution.Definition.Step(result.StepID)
	if pending.IsExpired(clock.Now()) {
		s.expire(ctx, e, pending, step, result)
		return nil, false, fmt.Errorf("%w: %w", approval.ErrNotFound, approval.ErrExpired)
	}
	outcome, err := s.gate.Decide(pending, result, request)
	if err != nil {
		if errors.Is(err, approval.ErrDuplicateApprover) {
			s.logger.Info("duplicate approval ignored",
				zap.String("execution_id", anExecution.ID),
				zap.String("handle", pending.Handle),
				zap.String("approver_id", request.ApproverID))
			return outcome, false, nil
		}
		return nil, false, err
	}
	decision := execution.DecisionApproved
	if !request.Approved {
		decision = execution.DecisionRejected
	}
	s.publish(ctx, event.NewEvent(anExecution, result.StepID, &event.ApprovalResolved{
		Handle:        pending.Handle,
		Decision:      decision,
		ApproverID:    request.ApproverID,
		ApproverEmail: request.ApproverEmail,
		Comment:       request.Comment,
		Approved:      outcome.Approved,
		Required:      outcome.Required,
		Final:         outcome.Final(),
	}).WithActor(request.ApproverID))

	switch {
	case outcome.Rejected:
		s.gate.Resolve(ctx, pending.Handle)
		cause := fmt.Errorf("%w by %s", approval.ErrRejected, request.ApproverID)
		result.Fail(clock.Now(), cause)
		s.publishOutcome(ctx, anExecution, result)
		s.fail(ctx, e, fmt.Errorf("step %s: %w", result.StepID, cause), s.compensates(step, anExecution))
		return outcome, false, nil
	case outcome.Resumed:
		s.gate.Resolve(ctx, pending.Handle)
		result.Complete(clock.Now())
		s.publishOutcome(ctx, anExecution, result)
		anExecution.Status = execution.StatusRunning
		anExecution.CurrentStep++
		s.checkpoint(ctx, e)
		return outcome, true, nil
	}
	s.checkpoint(ctx, e)
	return outcome, false, nil
}

// Sweep expires overdue approval gates and fails awaiting executions past
// their global deadline. Repeated sweeps never resolve a gate twice.
func (s *Service) Sweep(ctx context.Context, now time.Time) {
	for _, pending := range s.gate.Expired(ctx, now) {
		e := s.active.get(pending.ExecutionID)
		if e == nil {
			s.gate.Resolve(ctx, pending.Handle)
			continue
		}
		e.mux.Lock()
		anExecution := e.execution
		result := anExecution.PendingResult()
		if anExecution.Status == execution.StatusAwaitingApproval && result != nil && result.ApprovalHandle == pending.Handle {
			s.expire(ctx, e, pending, anExecution.Definition.Step(result.StepID), result)
		} else {
			s.gate.Resolve(ctx, pending.Handle)
		}
		e.mux.Unlock()
	}
	for _, e := range s.active.all() {
		snapshot := e.snapshot.Load()
		if snapshot == nil || snapshot.Status != execution.StatusAwaitingApproval {
			continue
		}
		deadline := snapshot.Deadline()
		if deadline.IsZero() || now.Before(deadline) {
			continue
		}
		e.mux.Lock()
		anExecution := e.execution
		if anExecution.Status == execution.StatusAwaitingApproval {
			if result := anExecution.PendingResult(); result != nil {
				result.Fail(now, ErrGlobalTimeout)
			}
			s.fail(ctx, e, fmt.Errorf("%w: %s", ErrGlobalTimeout, anExecution.Definition.Timeout), anExecution.Definition.RollbackOnFailure)
		}
		e.mux.Unlock()
	}
}

// expire runs under the execution lock.
func (s *Service) expire(ctx context.Context, e *entry, pending *approval.Pending, step *model.Step, result *execution.StepResult) {
	if !s.gate.Resolve(ctx, pending.Handle) {
		return
	}
	anExecution := e.execution
	s.gate.Expire(result)
	result.Fail(clock.Now(), approval.ErrExpired)
	s.publish(ctx, event.NewEvent(anExecution, result.StepID, &event.ApprovalResolved{
		Handle:   pending.Handle,
		Decision: execution.DecisionExpired,
		Approved: result.Approved(),
		Required: pending.RequiredApprovers,
		Final:    true,
	}))
	s.publishOutcome(ctx, anExecution, result)
	s.fail(ctx, e, fmt.Errorf("step %s: %w", result.StepID, approval.ErrExpired), s.compensates(step, anExecution))
}

func (s *Service) compensates(step *model.Step, anExecution *execution.Execution) bool {
	if anExecution.Definition.RollbackOnFailure {
		return true
	}
	return step != nil && step.OnFailure == model.PolicyRollback
}

func (s *Service) publishOutcome(ctx context.Context, anExecution *execution.Execution, result *execution.StepResult) {
	if result.Status == execution.StepAwaitingApproval || result.Status == execution.StepSkipped {
		return
	}
	for _, child := range result.Children {
		s.publishOutcome(ctx, anExecution, child)
	}
	var duration time.Duration
	if result.StartedAt != nil && result.CompletedAt != nil {
		duration = result.CompletedAt.Sub(*result.StartedAt)
	}
	s.publish(ctx, event.NewEvent(anExecution, result.StepID, &event.StepOutcome{
		StepName: result.StepName,
		Kind:     result.Kind,
		Status:   result.Status,
		Error:    result.Error,
		Attempts: result.Attempts,
		Duration: duration,
		Branch:   result.Branch,
	}))
}

func (s *Service) publish(ctx context.Context, e *event.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event", string(e.Type())), zap.Error(err))
	}
}
