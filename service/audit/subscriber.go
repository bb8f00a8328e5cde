package audit

import (
	"context"
	"fmt"

	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/event"
)

// Subscriber returns an event handler writing one entry per domain event.
func Subscriber(sink Sink) event.Handler {
	return func(ctx context.Context, e *event.Event) error {
		entry := NewEntry(e)
		if entry == nil {
			return nil
		}
		if err := sink.Log(ctx, entry); err != nil {
			return fmt.Errorf("failed to write audit entry %s: %w", entry.Event, err)
		}
		return nil
	}
}

// NewEntry maps a domain event to an audit entry.
func NewEntry(e *event.Event) *Entry {
	if e == nil || e.Payload == nil || e.Context == nil {
		return nil
	}
	ret := &Entry{
		Event:          string(e.Type()),
		EntityType:     EntityType,
		EntityID:       e.Context.ExecutionID,
		OrganizationID: e.Context.OrganizationID,
		ActorID:        e.Context.ActorID,
		Severity:       SeverityInfo,
		CreatedAt:      e.CreatedAt,
		Metadata:       map[string]interface{}{"workflowId": e.Context.WorkflowID},
	}
	if e.Context.StepID != "" {
		ret.Metadata["stepId"] = e.Context.StepID
	}
	switch payload := e.Payload.(type) {
	case *event.ExecutionStarted:
		ret.Action = "workflow_started"
		ret.Metadata["dryRun"] = payload.DryRun
		ret.Metadata["steps"] = payload.Steps
		if payload.Target != nil {
			ret.Metadata["targetType"] = payload.Target.Type
			ret.Metadata["targetId"] = payload.Target.ID
		}
	case *event.StepOutcome:
		ret.Action = "step_" + string(payload.Status)
		ret.Metadata["kind"] = string(payload.Kind)
		ret.Metadata["attempts"] = payload.Attempts
		if payload.Error != "" {
			ret.Metadata["error"] = payload.Error
		}
		if payload.Status == execution.StepFailed {
			ret.Severity = SeverityWarning
		}
	case *event.ApprovalRequested:
		ret.Action = "approval_requested"
		ret.Metadata["handle"] = payload.Handle
		ret.Metadata["requiredApprovers"] = payload.RequiredApprovers
		ret.Metadata["expiresAt"] = payload.ExpiresAt
	case *event.ApprovalResolved:
		ret.Action = "approval_" + string(payload.Decision)
		ret.Metadata["handle"] = payload.Handle
		ret.Metadata["approved"] = payload.Approved
		ret.Metadata["required"] = payload.Required
		if payload.Comment != "" {
			ret.Metadata["comment"] = payload.Comment
		}
		if payload.Decision == execution.DecisionExpired {
			ret.Severity = SeverityWarning
		}
	case *event.StepRolledBack:
		ret.Action = "step_rolled_back"
		ret.Metadata["actionType"] = payload.ActionType
		if payload.Error != "" {
			ret.Action = "step_rollback_failed"
			ret.Metadata["error"] = payload.Error
			ret.Severity = SeverityWarning
		}
	case *event.ExecutionCancelled:
		ret.Action = "workflow_cancelled"
		ret.Severity = SeverityWarning
		if payload.Reason != "" {
			ret.Metadata["reason"] = payload.Reason
		}
	case *event.ExecutionFinished:
		ret.Action = "workflow_" + string(payload.Status)
		ret.Metadata["durationMs"] = payload.Duration.Milliseconds()
		if payload.Error != "" {
			ret.Metadata["error"] = payload.Error
		}
		switch payload.Status {
		case execution.StatusFailed:
			ret.Severity = SeverityError
		case execution.StatusRolledBack:
			ret.Severity = SeverityWarning
		}
	default:
		ret.Action = string(e.Type())
	}
	return ret
}
