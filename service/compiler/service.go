// Package compiler turns stored playbooks into immutable workflow definitions.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/remediator/model"
	"github.com/viant/remediator/runtime/evaluator"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/playbook"
	"go.uber.org/zap"
)

var (
	// ErrDefinitionNotFound is returned when the playbook does not exist in the organization.
	ErrDefinitionNotFound = errors.New("workflow definition not found")
	// ErrInvalidDefinition is returned when a playbook compiles into an unsound definition.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// ApprovalSuffix is appended to an action id to name its approval gate.
const ApprovalSuffix = ".approval"

// Defaults holds values applied when a playbook leaves them unset.
type Defaults struct {
	StepTimeout            time.Duration `json:"stepTimeout" yaml:"stepTimeout"`
	WorkflowTimeout        time.Duration `json:"workflowTimeout" yaml:"workflowTimeout"`
	ApprovalQuorum         int           `json:"approvalQuorum" yaml:"approvalQuorum"`
	ApprovalTimeoutMinutes int           `json:"approvalTimeoutMinutes" yaml:"approvalTimeoutMinutes"`
}

// DefaultDefaults returns the engine defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		StepTimeout:            300 * time.Second,
		WorkflowTimeout:        time.Hour,
		ApprovalQuorum:         1,
		ApprovalTimeoutMinutes: 60,
	}
}

// Service compiles playbooks.
type Service struct {
	store    playbook.Store
	defaults Defaults
	logger   *zap.Logger
}

// Option customises the service
type Option func(s *Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithDefaults overrides compile defaults.
func WithDefaults(defaults Defaults) Option {
	return func(s *Service) { s.defaults = defaults }
}

// New creates a compiler reading from store.
func New(store playbook.Store, options ...Option) *Service {
	ret := &Service{store: store, defaults: DefaultDefaults(), logger: zap.NewNop()}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Compile loads and compiles a playbook.
func (s *Service) Compile(ctx context.Context, playbookID, organizationID string) (*model.Definition, error) {
	if s.store == nil {
		return nil, fmt.Errorf("playbook store is not configured")
	}
	aPlaybook, err := s.store.GetPlaybook(ctx, playbookID, organizationID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDefinitionNotFound, organizationID, playbookID)
		}
		return nil, fmt.Errorf("failed to load playbook %s: %w", playbookID, err)
	}
	if aPlaybook.OrganizationID != "" && aPlaybook.OrganizationID != organizationID {
		return nil, fmt.Errorf("%w: %s/%s", ErrDefinitionNotFound, organizationID, playbookID)
	}
	definition, err := s.CompilePlaybook(aPlaybook)
	if err != nil {
		return nil, err
	}
	definition.OrganizationID = organizationID
	s.logger.Debug("playbook compiled",
		zap.String("org_id", organizationID),
		zap.String("workflow_id", definition.ID),
		zap.Int("steps", len(definition.Steps)))
	return definition, nil
}

// CompilePlaybook compiles aPlaybook without touching the store.
func (s *Service) CompilePlaybook(aPlaybook *model.Playbook) (*model.Definition, error) {
	if aPlaybook == nil {
		return nil, fmt.Errorf("%w: playbook is nil", ErrInvalidDefinition)
	}
	definition := &model.Definition{
		ID:                aPlaybook.ID,
		OrganizationID:    aPlaybook.OrganizationID,
		Name:              aPlaybook.Name,
		Description:       aPlaybook.Description,
		Timeout:           s.defaults.WorkflowTimeout,
		RollbackOnFailure: aPlaybook.RollbackOnFailure,
		NotifyOnComplete:  aPlaybook.NotifyOnComplete,
		NotifyOnFailure:   aPlaybook.NotifyOnFailure,
	}
	if definition.Name == "" {
		definition.Name = aPlaybook.ID
	}
	if aPlaybook.TimeoutSeconds > 0 {
		definition.Timeout = time.Duration(aPlaybook.TimeoutSeconds) * time.Second
	}

	var issues []error
	gated := map[string]string{}
	for i, anAction := range aPlaybook.Actions {
		if anAction == nil {
			issues = append(issues, fmt.Errorf("action %d is empty", i))
			continue
		}
		if anAction.ID == "" {
			anAction = withID(anAction, fmt.Sprintf("step-%d", i+1))
		}
		step, err := s.step(anAction)
		if err != nil {
			issues = append(issues, err)
			continue
		}
		if anAction.RequiresApproval && step.Kind() != model.KindApproval {
			gate := s.approvalGate(anAction, step)
			gated[step.ID] = gate.ID
			definition.Steps = append(definition.Steps, gate)
		}
		definition.Steps = append(definition.Steps, step)
	}
	redirect(definition, gated, &issues)
	issues = append(issues, definition.Validate()...)
	for _, step := range definition.Steps {
		if condition, ok := step.Body.(*model.ConditionBody); ok {
			if _, err := evaluator.Compile(condition.Expression); err != nil {
				issues = append(issues, fmt.Errorf("condition %s: %w", step.ID, err))
			}
		}
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, aPlaybook.ID, errors.Join(issues...))
	}
	return definition, nil
}

func withID(anAction *model.PlaybookAction, id string) *model.PlaybookAction {
	ret := *anAction
	ret.ID = id
	return &ret
}

func (s *Service) step(anAction *model.PlaybookAction) (*model.Step, error) {
	step := &model.Step{
		ID:           anAction.ID,
		Name:         anAction.Name,
		Timeout:      s.defaults.StepTimeout,
		RetryCount:   anAction.RetryCount,
		OnFailure:    policy(anAction),
		Compensation: anAction.Compensation,
	}
	if step.Name == "" {
		step.Name = anAction.ID
	}
	if anAction.TimeoutSeconds > 0 {
		step.Timeout = time.Duration(anAction.TimeoutSeconds) * time.Second
	}
	kind := model.Kind(strings.ToLower(string(anAction.Kind)))
	if kind == "" {
		kind = model.KindAction
	}
	switch kind {
	case model.KindApproval:
		step.Body = s.approvalBody(anAction)
		step.RetryCount = 0
	case model.KindCondition:
		step.Body = &model.ConditionBody{Expression: anAction.Expression, OnTrue: anAction.OnTrue, OnFalse: anAction.OnFalse}
	case model.KindParallel:
		step.Body = &model.ParallelBody{ChildStepIDs: anAction.Children}
	case model.KindNotification:
		step.Body = &model.NotificationBody{Channels: anAction.Channels, Template: anAction.Template, Recipients: anAction.Recipients}
	case model.KindAction:
		if anAction.Type == "" {
			return nil, fmt.Errorf("action %s has no type", anAction.ID)
		}
		step.Body = &model.ActionBody{Action: model.Action{
			Type:       anAction.Type,
			Target:     anAction.Target,
			Parameters: anAction.Parameters,
			Provider:   anAction.Provider,
		}}
	default:
		return nil, fmt.Errorf("action %s has unknown kind %q", anAction.ID, anAction.Kind)
	}
	return step, nil
}

func (s *Service) approvalBody(anAction *model.PlaybookAction) *model.ApprovalBody {
	ret := &model.ApprovalBody{
		RequiredApprovers: anAction.RequiredApprovers,
		ApproverRoles:     anAction.ApproverRoles,
		TimeoutMinutes:    anAction.ApprovalTimeoutMinutes,
		Channels:          anAction.Channels,
	}
	if ret.RequiredApprovers <= 0 {
		ret.RequiredApprovers = s.defaults.ApprovalQuorum
	}
	if ret.TimeoutMinutes <= 0 {
		ret.TimeoutMinutes = s.defaults.ApprovalTimeoutMinutes
	}
	return ret
}

// approvalGate returns the sign off step preceding an action that requires approval.
func (s *Service) approvalGate(anAction *model.PlaybookAction, step *model.Step) *model.Step {
	body := s.approvalBody(anAction)
	if step.Kind() == model.KindNotification {
		body.Channels = nil
	}
	return &model.Step{
		ID:        step.ID + ApprovalSuffix,
		Name:      "Approve " + step.Name,
		Timeout:   s.defaults.StepTimeout,
		OnFailure: step.OnFailure,
		Body:      body,
	}
}

func policy(anAction *model.PlaybookAction) model.FailurePolicy {
	if anAction.OnFailure != "" {
		return anAction.OnFailure
	}
	if strings.EqualFold(anAction.BlastRadius, model.BlastRadiusCritical) {
		return model.PolicyRollback
	}
	return model.PolicyStop
}

// redirect points condition targets at approval gates of gated steps and
// rejects gated parallel children.
func redirect(definition *model.Definition, gated map[string]string, issues *[]error) {
	if len(gated) == 0 {
		return
	}
	for _, step := range definition.Steps {
		switch body := step.Body.(type) {
		case *model.ConditionBody:
			if gate, ok := gated[body.OnTrue]; ok {
				body.OnTrue = gate
			}
			if gate, ok := gated[body.OnFalse]; ok {
				body.OnFalse = gate
			}
		case *model.ParallelBody:
			for _, child := range body.ChildStepIDs {
				if _, ok := gated[child]; ok {
					*issues = append(*issues, fmt.Errorf("parallel %s child %s cannot require approval", step.ID, child))
				}
			}
		}
	}
}
