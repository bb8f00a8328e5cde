package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/runtime/evaluator"
	"github.com/viant/remediator/service/action"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/notification"
	"github.com/viant/remediator/tracing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout applies to steps without a timeout.
	DefaultTimeout = 300 * time.Second
	// DefaultRetryBackoff is the retry backoff unit.
	DefaultRetryBackoff = time.Second
)

// Gate opens approval gates.
type Gate interface {
	RequestApproval(ctx context.Context, anExecution *execution.Execution, step *model.Step, result *execution.StepResult) (*approval.Pending, error)
	Resolve(ctx context.Context, handle string) bool
}

// Service executes steps.
type Service struct {
	actions        action.Executor
	gate           Gate
	notifier       notification.Sender
	logger         *zap.Logger
	defaultTimeout time.Duration
	backoffUnit    time.Duration
	maxParallel    int
}

// New creates a step executor.
func New(actions action.Executor, options ...Option) *Service {
	ret := &Service{
		actions:        actions,
		logger:         zap.NewNop(),
		defaultTimeout: DefaultTimeout,
		backoffUnit:    DefaultRetryBackoff,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Execute runs step for anExecution and always returns a result; failures
// are captured on the result. anExecution must not be mutated concurrently.
func (s *Service) Execute(ctx context.Context, anExecution *execution.Execution, step *model.Step) *execution.StepResult {
	ctx, span := tracing.StartStep(ctx, anExecution.ID, step.ID, string(step.Kind()))
	started := clock.Now()
	maxAttempts := step.RetryCount + 1
	if step.Kind() == model.KindApproval || maxAttempts < 1 {
		maxAttempts = 1
	}
	var result *execution.StepResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.backoff(ctx, attempt-1); err != nil {
				break
			}
			s.logger.Info("retrying step",
				zap.String("execution_id", anExecution.ID),
				zap.String("step_id", step.ID),
				zap.Int("attempt", attempt),
				zap.String("error", result.Error))
		}
		result = s.attempt(ctx, anExecution, step, result)
		result.Attempts = attempt
		if result.Status != execution.StepFailed {
			break
		}
	}
	result.StartedAt = &started
	span.Set(tracing.KeyAttempts.Int(result.Attempts))
	if result.Status == execution.StepFailed {
		span.End(errors.New(result.Error))
	} else {
		span.End(nil)
	}
	return result
}

func (s *Service) backoff(ctx context.Context, n int) error {
	if s.backoffUnit <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(n) * s.backoffUnit)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) timeout(step *model.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return s.defaultTimeout
}

// attempt races a single run of step against its timeout; previous is the
// failed result of the prior attempt, if any.
func (s *Service) attempt(ctx context.Context, anExecution *execution.Execution, step *model.Step, previous *execution.StepResult) *execution.StepResult {
	timeout := s.timeout(step)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *execution.StepResult, 1)
	go func() {
		result := execution.NewStepResult(step, clock.Now())
		if err := s.run(runCtx, anExecution, step, result, previous); err != nil {
			result.Fail(clock.Now(), err)
		} else if result.Status == execution.StepRunning {
			result.Complete(clock.Now())
		}
		done <- result
	}()

	var result *execution.StepResult
	select {
	case result = <-done:
		if result.Status != execution.StepFailed || runCtx.Err() == nil {
			return result
		}
	case <-runCtx.Done():
		result = execution.NewStepResult(step, clock.Now())
		go s.release(context.WithoutCancel(ctx), done)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.Fail(clock.Now(), fmt.Errorf("%w: %s exceeded %s", ErrStepTimeout, step.ID, timeout))
	} else {
		result.Fail(clock.Now(), fmt.Errorf("step %s interrupted: %w", step.ID, runCtx.Err()))
	}
	return result
}

// release resolves a gate registered by a run abandoned on timeout.
func (s *Service) release(ctx context.Context, done <-chan *execution.StepResult) {
	abandoned := <-done
	if s.gate == nil || abandoned.ApprovalHandle == "" {
		return
	}
	if s.gate.Resolve(ctx, abandoned.ApprovalHandle) {
		s.logger.Info("released abandoned approval",
			zap.String("step_id", abandoned.StepID),
			zap.String("handle", abandoned.ApprovalHandle))
	}
}

func (s *Service) run(ctx context.Context, anExecution *execution.Execution, step *model.Step, result, previous *execution.StepResult) error {
	switch body := step.Body.(type) {
	case *model.ActionBody:
		return s.runAction(ctx, anExecution, step, body, result)
	case *model.ApprovalBody:
		if s.gate == nil {
			return fmt.Errorf("approval gate is not configured")
		}
		_, err := s.gate.RequestApproval(ctx, anExecution, step, result)
		return err
	case *model.ConditionBody:
		return s.runCondition(anExecution, body, result)
	case *model.ParallelBody:
		return s.runParallel(ctx, anExecution, step, body, result, previous)
	case *model.NotificationBody:
		s.runNotification(ctx, anExecution, step, body, result)
		return nil
	}
	return fmt.Errorf("step %s has unsupported kind %q", step.ID, step.Kind())
}

func (s *Service) runAction(ctx context.Context, anExecution *execution.Execution, step *model.Step, body *model.ActionBody, result *execution.StepResult) error {
	if s.actions == nil {
		return fmt.Errorf("%w: action executor is not configured", ErrActionExecution)
	}
	anAction := body.Action
	results, err := s.actions.ExecuteActions(ctx, []*model.Action{&anAction}, &action.Context{
		ExecutionID:    anExecution.ID,
		OrganizationID: anExecution.OrganizationID,
		StepID:         step.ID,
		DryRun:         anExecution.IsDryRun(),
		Variables:      anExecution.Context,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActionExecution, err)
	}
	if len(results) == 0 || results[0] == nil {
		return fmt.Errorf("%w: no result for %s", ErrActionExecution, anAction.Type)
	}
	outcome := results[0]
	if len(outcome.Details) > 0 {
		result.Output = outcome.Details
	}
	if !outcome.Success {
		message := outcome.Error
		if message == "" {
			message = anAction.Type + " reported failure"
		}
		return fmt.Errorf("%w: %s", ErrActionExecution, message)
	}
	result.RollbackData = outcome.RollbackData
	return nil
}

func (s *Service) runCondition(anExecution *execution.Execution, body *model.ConditionBody, result *execution.StepResult) error {
	value, err := evaluator.Evaluate(body.Expression, Variables(anExecution))
	if err != nil {
		return err
	}
	result.Branch = "onFalse"
	if value {
		result.Branch = "onTrue"
	}
	result.Output = map[string]interface{}{"result": value, "next": body.Next(value)}
	return nil
}

// runParallel runs every child to completion; a failed child never cancels
// its siblings. On retry the children that completed in previous are kept
// and only failed ones run again.
func (s *Service) runParallel(ctx context.Context, anExecution *execution.Execution, step *model.Step, body *model.ParallelBody, result, previous *execution.StepResult) error {
	children := make([]*execution.StepResult, len(body.ChildStepIDs))
	kept := map[string]*execution.StepResult{}
	if previous != nil {
		for _, child := range previous.Children {
			if child != nil && child.Status != execution.StepFailed {
				kept[child.StepID] = child
			}
		}
	}
	group := &errgroup.Group{}
	if s.maxParallel > 0 {
		group.SetLimit(s.maxParallel)
	}
	for i, childID := range body.ChildStepIDs {
		if child, ok := kept[childID]; ok {
			children[i] = child
			continue
		}
		childStep := anExecution.Definition.Step(childID)
		if childStep == nil {
			now := clock.Now()
			children[i] = &execution.StepResult{StepID: childID, Status: execution.StepFailed, StartedAt: &now, CompletedAt: &now,
				Error: fmt.Sprintf("parallel %s child %s not found", step.ID, childID)}
			continue
		}
		group.Go(func() error {
			children[i] = s.Execute(ctx, anExecution, childStep)
			return nil
		})
	}
	_ = group.Wait()
	result.Children = children

	var failed []string
	for _, child := range children {
		if child.Status == execution.StepFailed {
			failed = append(failed, child.StepID)
		}
	}
	result.Output = map[string]interface{}{"children": len(children), "failed": len(failed)}
	if len(failed) > 0 {
		return fmt.Errorf("parallel %s: failed children: %s", step.ID, strings.Join(failed, ","))
	}
	return nil
}

func (s *Service) runNotification(ctx context.Context, anExecution *execution.Execution, step *model.Step, body *model.NotificationBody, result *execution.StepResult) {
	var channelResults []*notification.ChannelResult
	if s.notifier == nil {
		for _, channel := range body.Channels {
			channelResults = append(channelResults, &notification.ChannelResult{Channel: channel, Error: "notifications are not configured"})
		}
	} else {
		channelResults = s.notifier.Send(ctx, body.Channels, body.Template, body.Recipients, map[string]interface{}{
			"executionId":    anExecution.ID,
			"workflowId":     anExecution.WorkflowID,
			"organizationId": anExecution.OrganizationID,
			"stepId":         step.ID,
			"context":        anExecution.Context,
		})
	}
	channels := make([]interface{}, 0, len(channelResults))
	for _, channelResult := range channelResults {
		if !channelResult.Success {
			s.logger.Warn("notification channel failed",
				zap.String("execution_id", anExecution.ID),
				zap.String("step_id", step.ID),
				zap.String("channel", channelResult.Channel),
				zap.String("error", channelResult.Error))
		}
		channels = append(channels, map[string]interface{}{
			"channel": channelResult.Channel,
			"success": channelResult.Success,
			"error":   channelResult.Error,
		})
	}
	result.Output = map[string]interface{}{"channels": channels}
}
