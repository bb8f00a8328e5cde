package notification

import (
	"context"

	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/event"
)

// Subscriber returns an event handler sending approver notifications and
// completion or failure notices. defaultChannels apply when an event does not
// name its own channels.
func Subscriber(sender Sender, defaultChannels []string) event.Handler {
	return func(ctx context.Context, e *event.Event) error {
		switch payload := e.Payload.(type) {
		case *event.ApprovalRequested:
			channels := payload.Channels
			if len(channels) == 0 {
				channels = defaultChannels
			}
			sender.Send(ctx, channels, TemplateApprovalRequested, payload.ApproverRoles, map[string]interface{}{
				"executionId":       e.Context.ExecutionID,
				"workflowId":        e.Context.WorkflowID,
				"organizationId":    e.Context.OrganizationID,
				"stepId":            e.Context.StepID,
				"stepName":          payload.StepName,
				"handle":            payload.Handle,
				"requiredApprovers": payload.RequiredApprovers,
				"expiresAt":         payload.ExpiresAt,
			})
		case *event.ExecutionFinished:
			template := ""
			switch {
			case payload.Status == execution.StatusCompleted && payload.NotifyOnComplete:
				template = TemplateWorkflowCompleted
			case payload.Status != execution.StatusCompleted && payload.NotifyOnFailure:
				template = TemplateWorkflowFailed
			}
			if template == "" {
				return nil
			}
			sender.Send(ctx, defaultChannels, template, nil, map[string]interface{}{
				"executionId":    e.Context.ExecutionID,
				"workflowId":     e.Context.WorkflowID,
				"organizationId": e.Context.OrganizationID,
				"status":         string(payload.Status),
				"error":          payload.Error,
			})
		}
		return nil
	}
}
