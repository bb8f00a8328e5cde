package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FailurePolicy controls what happens to an execution when a step fails.
type FailurePolicy string

const (
	// PolicyStop fails the execution.
	PolicyStop FailurePolicy = "stop"
	// PolicyContinue records the failure and moves on to the next step.
	PolicyContinue FailurePolicy = "continue"
	// PolicyRollback fails the execution and compensates completed steps.
	PolicyRollback FailurePolicy = "rollback"
)

// IsValid reports whether the policy is one of the known values.
func (p FailurePolicy) IsValid() bool {
	switch p {
	case PolicyStop, PolicyContinue, PolicyRollback:
		return true
	}
	return false
}

// Definition represents a compiled, immutable workflow definition. A running
// execution holds its own copy and never observes later playbook edits.
type Definition struct {
	// ID is the playbook id the definition was compiled from
	ID string `json:"id" yaml:"id"`

	OrganizationID string `json:"organizationId" yaml:"organizationId"`

	// Name is a human-readable workflow name
	Name string `json:"name" yaml:"name"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Steps are executed in order unless a condition step redirects the flow
	Steps []*Step `json:"steps" yaml:"steps"`

	// Timeout bounds the total wall-clock time of an execution
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	RollbackOnFailure bool `json:"rollbackOnFailure,omitempty" yaml:"rollbackOnFailure,omitempty"`
	NotifyOnComplete  bool `json:"notifyOnComplete,omitempty" yaml:"notifyOnComplete,omitempty"`
	NotifyOnFailure   bool `json:"notifyOnFailure,omitempty" yaml:"notifyOnFailure,omitempty"`
}

// Step returns the step with the given id or nil.
func (d *Definition) Step(id string) *Step {
	if idx := d.IndexOf(id); idx >= 0 {
		return d.Steps[idx]
	}
	return nil
}

// IndexOf returns the position of the step with the given id or -1.
func (d *Definition) IndexOf(id string) int {
	for i, step := range d.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

// ParallelChildren returns ids of steps that only execute as children of a
// parallel step.
func (d *Definition) ParallelChildren() map[string]string {
	ret := map[string]string{}
	for _, step := range d.Steps {
		if parallel, ok := step.Body.(*ParallelBody); ok {
			for _, child := range parallel.ChildStepIDs {
				ret[child] = step.ID
			}
		}
	}
	return ret
}

// Validate checks structural soundness of the definition and returns every
// issue found.
func (d *Definition) Validate() []error {
	var issues []error
	if len(d.Steps) == 0 {
		issues = append(issues, fmt.Errorf("workflow %s has no steps", d.ID))
	}
	seen := map[string]bool{}
	for _, step := range d.Steps {
		if step.ID == "" {
			issues = append(issues, fmt.Errorf("step %q has empty id", step.Name))
			continue
		}
		if seen[step.ID] {
			issues = append(issues, fmt.Errorf("duplicate step id %s", step.ID))
		}
		seen[step.ID] = true
		if step.Body == nil {
			issues = append(issues, fmt.Errorf("step %s has no body", step.ID))
		}
		if !step.OnFailure.IsValid() {
			issues = append(issues, fmt.Errorf("step %s has invalid failure policy %q", step.ID, step.OnFailure))
		}
	}
	owners := map[string]string{}
	for i, step := range d.Steps {
		switch body := step.Body.(type) {
		case *ConditionBody:
			for _, target := range []string{body.OnTrue, body.OnFalse} {
				if target == "" {
					continue
				}
				if idx := d.IndexOf(target); idx <= i {
					issues = append(issues, fmt.Errorf("condition %s target %s must be a later step", step.ID, target))
				}
			}
		case *ParallelBody:
			if len(body.ChildStepIDs) == 0 {
				issues = append(issues, fmt.Errorf("parallel step %s has no children", step.ID))
			}
			for _, childID := range body.ChildStepIDs {
				idx := d.IndexOf(childID)
				if idx <= i {
					issues = append(issues, fmt.Errorf("parallel %s child %s must be a later step", step.ID, childID))
					continue
				}
				if owner, ok := owners[childID]; ok {
					issues = append(issues, fmt.Errorf("step %s is a child of both %s and %s", childID, owner, step.ID))
				}
				owners[childID] = step.ID
				switch d.Steps[idx].Kind() {
				case KindAction, KindNotification:
				default:
					issues = append(issues, fmt.Errorf("parallel %s child %s must be an action or notification", step.ID, childID))
				}
			}
		}
	}
	return issues
}

// Step represents a single unit of work in a workflow definition.
type Step struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Body holds the variant payload; exactly one of the *Body types
	Body Body `json:"-" yaml:"-"`

	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	RetryCount int           `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
	OnFailure  FailurePolicy `json:"onFailure" yaml:"onFailure"`

	// Compensation undoes the effect of the step during rollback
	Compensation *Action `json:"compensation,omitempty" yaml:"compensation,omitempty"`
}

// Kind returns the variant kind of the step body.
func (s *Step) Kind() Kind {
	if s.Body == nil {
		return ""
	}
	return s.Body.Kind()
}

// Action returns the action payload or nil.
func (s *Step) Action() *ActionBody {
	ret, _ := s.Body.(*ActionBody)
	return ret
}

// Approval returns the approval payload or nil.
func (s *Step) Approval() *ApprovalBody {
	ret, _ := s.Body.(*ApprovalBody)
	return ret
}

type stepAlias Step

type stepJSON struct {
	*stepAlias
	Kind         Kind              `json:"kind"`
	Action       *ActionBody       `json:"action,omitempty"`
	Approval     *ApprovalBody     `json:"approval,omitempty"`
	Condition    *ConditionBody    `json:"condition,omitempty"`
	Parallel     *ParallelBody     `json:"parallel,omitempty"`
	Notification *NotificationBody `json:"notification,omitempty"`
}

// MarshalJSON encodes the body next to a kind discriminator.
func (s *Step) MarshalJSON() ([]byte, error) {
	out := stepJSON{stepAlias: (*stepAlias)(s), Kind: s.Kind()}
	switch body := s.Body.(type) {
	case *ActionBody:
		out.Action = body
	case *ApprovalBody:
		out.Approval = body
	case *ConditionBody:
		out.Condition = body
	case *ParallelBody:
		out.Parallel = body
	case *NotificationBody:
		out.Notification = body
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a step encoded with MarshalJSON.
func (s *Step) UnmarshalJSON(data []byte) error {
	in := stepJSON{stepAlias: (*stepAlias)(s)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case KindAction:
		s.Body = in.Action
	case KindApproval:
		s.Body = in.Approval
	case KindCondition:
		s.Body = in.Condition
	case KindParallel:
		s.Body = in.Parallel
	case KindNotification:
		s.Body = in.Notification
	default:
		return fmt.Errorf("step %s: unsupported kind %q", s.ID, in.Kind)
	}
	if s.Body == nil || isNilBody(s.Body) {
		return fmt.Errorf("step %s: missing %s payload", s.ID, in.Kind)
	}
	return nil
}

func isNilBody(b Body) bool {
	switch v := b.(type) {
	case *ActionBody:
		return v == nil
	case *ApprovalBody:
		return v == nil
	case *ConditionBody:
		return v == nil
	case *ParallelBody:
		return v == nil
	case *NotificationBody:
		return v == nil
	}
	return true
}
