package model

import "encoding/json"

// Kind identifies a step variant.
type Kind string

const (
	KindAction       Kind = "action"
	KindApproval     Kind = "approval"
	KindCondition    Kind = "condition"
	KindParallel     Kind = "parallel"
	KindNotification Kind = "notification"
)

// Body is the closed set of step payloads. Only types declared in this
// package implement it.
type Body interface {
	Kind() Kind
	isBody()
}

// Action is an abstract remediation action handed to the action executor.
type Action struct {
	Type       string                 `json:"type" yaml:"type"`
	Target     string                 `json:"target,omitempty" yaml:"target,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Provider   string                 `json:"provider,omitempty" yaml:"provider,omitempty"`

	// RollbackData is set only on compensating actions
	RollbackData json.RawMessage `json:"rollbackData,omitempty" yaml:"-"`
}

// ActionBody performs a single action through the action executor.
type ActionBody struct {
	Action
}

// ApprovalBody suspends the execution until enough approvers agree.
type ApprovalBody struct {
	RequiredApprovers int      `json:"requiredApprovers" yaml:"requiredApprovers"`
	ApproverRoles     []string `json:"approverRoles,omitempty" yaml:"approverRoles,omitempty"`
	TimeoutMinutes    int      `json:"timeoutMinutes" yaml:"timeoutMinutes"`
	// Channels receive approver notifications
	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// ConditionBody selects the next step from a boolean expression.
type ConditionBody struct {
	Expression string `json:"expression" yaml:"expression"`
	OnTrue     string `json:"onTrue,omitempty" yaml:"onTrue,omitempty"`
	OnFalse    string `json:"onFalse,omitempty" yaml:"onFalse,omitempty"`
}

// Next returns the step id selected by result; empty means the following step.
func (c *ConditionBody) Next(result bool) string {
	if result {
		return c.OnTrue
	}
	return c.OnFalse
}

// ParallelBody runs child steps concurrently.
type ParallelBody struct {
	ChildStepIDs []string `json:"childStepIds" yaml:"childStepIds"`
}

// NotificationBody sends a templated message to channels.
type NotificationBody struct {
	Channels   []string `json:"channels" yaml:"channels"`
	Template   string   `json:"template" yaml:"template"`
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
}

func (*ActionBody) Kind() Kind       { return KindAction }
func (*ApprovalBody) Kind() Kind     { return KindApproval }
func (*ConditionBody) Kind() Kind    { return KindCondition }
func (*ParallelBody) Kind() Kind     { return KindParallel }
func (*NotificationBody) Kind() Kind { return KindNotification }

func (*ActionBody) isBody()       {}
func (*ApprovalBody) isBody()     {}
func (*ConditionBody) isBody()    {}
func (*ParallelBody) isBody()     {}
func (*NotificationBody) isBody() {}
