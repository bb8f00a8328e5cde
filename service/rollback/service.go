// Package rollback compensates completed steps of a failed execution.
// Compensation is best effort: a failed compensating action is recorded on
// its step and never stops compensation of earlier steps.
package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/action"
	"github.com/viant/remediator/service/event"
	"go.uber.org/zap"
)

// ErrPartialFailure reports that at least one compensation failed.
var ErrPartialFailure = errors.New("rollback partially failed")

// Attempt is the outcome of one compensation.
type Attempt struct {
	StepID     string `json:"stepId"`
	ActionType string `json:"actionType"`
	Error      string `json:"error,omitempty"`
}

// Report summarises a compensation pass.
type Report struct {
	Attempts []*Attempt `json:"attempts"`
}

// Failed returns attempts that did not succeed.
func (r *Report) Failed() []*Attempt {
	var ret []*Attempt
	for _, attempt := range r.Attempts {
		if attempt.Error != "" {
			ret = append(ret, attempt)
		}
	}
	return ret
}

// Err returns ErrPartialFailure when any attempt failed.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	ids := make([]string, len(failed))
	for i, attempt := range failed {
		ids[i] = attempt.StepID
	}
	return fmt.Errorf("%w: %v", ErrPartialFailure, ids)
}

// Service executes compensating actions through the action executor port.
type Service struct {
	actions   action.Executor
	publisher event.Publisher
	logger    *zap.Logger
}

// Option customises the service
type Option func(s *Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(publisher event.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// New creates a compensator.
func New(actions action.Executor, options ...Option) *Service {
	ret := &Service{actions: actions, logger: zap.NewNop()}
	for _, option := range options {
		option(ret)
	}
	return ret
}

type candidate struct {
	result *execution.StepResult
	step   *model.Step
}

// Eligible returns completed results whose step declares a compensating
// action, latest first. Parallel children follow their parent's position in
// reverse order.
func Eligible(anExecution *execution.Execution, definition *model.Definition) []*execution.StepResult {
	candidates := eligible(anExecution, definition)
	ret := make([]*execution.StepResult, len(candidates))
	for i, c := range candidates {
		ret[i] = c.result
	}
	return ret
}

func eligible(anExecution *execution.Execution, definition *model.Definition) []candidate {
	var ret []candidate
	add := func(result *execution.StepResult) {
		if result.Status != execution.StepCompleted {
			return
		}
		step := definition.Step(result.StepID)
		if step == nil || step.Compensation == nil {
			return
		}
		ret = append(ret, candidate{result: result, step: step})
	}
	for i := len(anExecution.StepResults) - 1; i >= 0; i-- {
		result := anExecution.StepResults[i]
		for j := len(result.Children) - 1; j >= 0; j-- {
			add(result.Children[j])
		}
		add(result)
	}
	return ret
}

// Compensate attempts every eligible compensation of anExecution in reverse
// order. The caller must hold the execution lock.
func (s *Service) Compensate(ctx context.Context, anExecution *execution.Execution, definition *model.Definition) *Report {
	report := &Report{}
	for _, c := range eligible(anExecution, definition) {
		attempt := &Attempt{StepID: c.step.ID, ActionType: c.step.Compensation.Type}
		report.Attempts = append(report.Attempts, attempt)
		if err := s.compensate(ctx, anExecution, c.step, c.result); err != nil {
			attempt.Error = err.Error()
			c.result.RollbackError = err.Error()
			s.logger.Warn("compensation failed",
				zap.String("execution_id", anExecution.ID),
				zap.String("step_id", c.step.ID),
				zap.Error(err))
		} else {
			c.result.Status = execution.StepRolledBack
			c.result.RollbackError = ""
			c.result.RollbackData = nil
			s.logger.Info("step rolled back",
				zap.String("execution_id", anExecution.ID),
				zap.String("step_id", c.step.ID))
		}
		s.publish(ctx, event.NewEvent(anExecution, c.step.ID, &event.StepRolledBack{ActionType: attempt.ActionType, Error: attempt.Error}))
	}
	return report
}

func (s *Service) compensate(ctx context.Context, anExecution *execution.Execution, step *model.Step, result *execution.StepResult) error {
	if s.actions == nil {
		return fmt.Errorf("action executor is not configured")
	}
	compensation := *step.Compensation
	compensation.RollbackData = result.RollbackData
	results, err := s.actions.ExecuteActions(ctx, []*model.Action{&compensation}, &action.Context{
		ExecutionID:    anExecution.ID,
		OrganizationID: anExecution.OrganizationID,
		StepID:         step.ID,
		DryRun:         anExecution.IsDryRun(),
		Compensating:   true,
		Variables:      anExecution.Context,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 || results[0] == nil {
		return fmt.Errorf("no result for compensation %s", compensation.Type)
	}
	if !results[0].Success {
		if results[0].Error == "" {
			return fmt.Errorf("compensation %s reported failure", compensation.Type)
		}
		return errors.New(results[0].Error)
	}
	at := clock.Now()
	result.CompletedAt = &at
	return nil
}

func (s *Service) publish(ctx context.Context, e *event.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event", string(e.Type())), zap.Error(err))
	}
}
