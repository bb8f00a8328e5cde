package event

import (
	"time"

	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
)

// Type names a domain event.
type Type string

const (
	TypeExecutionStarted   Type = "execution.started"
	TypeStepCompleted      Type = "step.completed"
	TypeStepFailed         Type = "step.failed"
	TypeApprovalRequested  Type = "approval.requested"
	TypeApprovalResolved   Type = "approval.resolved"
	TypeStepRolledBack     Type = "step.rolled_back"
	TypeExecutionCancelled Type = "execution.cancelled"
	TypeExecutionFinished  Type = "execution.finished"
)

// Context identifies what an event is about.
type Context struct {
	ExecutionID    string `json:"executionId"`
	WorkflowID     string `json:"workflowId"`
	OrganizationID string `json:"organizationId"`
	StepID         string `json:"stepId,omitempty"`
	ActorID        string `json:"actorId,omitempty"`
}

// Payload is the closed set of domain event payloads.
type Payload interface {
	Type() Type
}

// Event is a domain event published by the engine.
type Event struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Payload   Payload                `json:"payload"`
}

// Type returns the payload type.
func (e *Event) Type() Type { return e.Payload.Type() }

// NewEvent creates an event for anExecution.
func NewEvent(anExecution *execution.Execution, stepID string, payload Payload) *Event {
	return &Event{
		Context: &Context{
			ExecutionID:    anExecution.ID,
			WorkflowID:     anExecution.WorkflowID,
			OrganizationID: anExecution.OrganizationID,
			StepID:         stepID,
		},
		CreatedAt: clock.Now(),
		Metadata:  map[string]interface{}{},
		Payload:   payload,
	}
}

// WithActor sets the acting principal.
func (e *Event) WithActor(actorID string) *Event {
	e.Context.ActorID = actorID
	return e
}

// ExecutionStarted is published when an execution is created.
type ExecutionStarted struct {
	WorkflowName string            `json:"workflowName"`
	TriggeredBy  string            `json:"triggeredBy"`
	Target       *execution.Target `json:"target,omitempty"`
	DryRun       bool              `json:"dryRun"`
	Steps        int               `json:"steps"`
}

// StepOutcome is published when a step completes or fails.
type StepOutcome struct {
	StepName string               `json:"stepName,omitempty"`
	Kind     model.Kind           `json:"kind"`
	Status   execution.StepStatus `json:"status"`
	Error    string               `json:"error,omitempty"`
	Attempts int                  `json:"attempts"`
	Duration time.Duration        `json:"duration"`
	Branch   string               `json:"branch,omitempty"`
}

// ApprovalRequested is published when an approval gate opens.
type ApprovalRequested struct {
	Handle            string    `json:"handle"`
	StepName          string    `json:"stepName,omitempty"`
	RequiredApprovers int       `json:"requiredApprovers"`
	ApproverRoles     []string  `json:"approverRoles,omitempty"`
	Channels          []string  `json:"channels,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// ApprovalResolved is published for every recorded decision; Final is set
// when the decision closed the gate.
type ApprovalResolved struct {
	Handle        string             `json:"handle"`
	Decision      execution.Decision `json:"decision"`
	ApproverID    string             `json:"approverId,omitempty"`
	ApproverEmail string             `json:"approverEmail,omitempty"`
	Comment       string             `json:"comment,omitempty"`
	Approved      int                `json:"approved"`
	Required      int                `json:"required"`
	Final         bool               `json:"final"`
}

// StepRolledBack is published for every compensation attempt.
type StepRolledBack struct {
	ActionType string `json:"actionType"`
	Error      string `json:"error,omitempty"`
}

// ExecutionCancelled is published when an execution is cancelled.
type ExecutionCancelled struct {
	Reason string `json:"reason,omitempty"`
}

// ExecutionFinished is published once per terminal transition other than
// cancellation.
type ExecutionFinished struct {
	Status           execution.Status `json:"status"`
	Error            string           `json:"error,omitempty"`
	Duration         time.Duration    `json:"duration"`
	NotifyOnComplete bool             `json:"notifyOnComplete,omitempty"`
	NotifyOnFailure  bool             `json:"notifyOnFailure,omitempty"`
}

func (*ExecutionStarted) Type() Type   { return TypeExecutionStarted }
func (*ApprovalRequested) Type() Type  { return TypeApprovalRequested }
func (*ApprovalResolved) Type() Type   { return TypeApprovalResolved }
func (*StepRolledBack) Type() Type     { return TypeStepRolledBack }
func (*ExecutionCancelled) Type() Type { return TypeExecutionCancelled }
func (*ExecutionFinished) Type() Type  { return TypeExecutionFinished }

// Type returns completed or failed depending on the step status.
func (s *StepOutcome) Type() Type {
	if s.Status == execution.StepFailed {
		return TypeStepFailed
	}
	return TypeStepCompleted
}
