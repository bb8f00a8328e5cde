// Package notification delivers templated messages to outbound channels.
// Every channel is guarded by a circuit breaker and a rate limiter; a channel
// failure is reported per channel and never fails the caller.
package notification

import (
	"context"
	"errors"
	"time"
)

// ErrChannelNotFound is reported for channels that are not registered.
var ErrChannelNotFound = errors.New("notification channel not registered")

// Template ids used by the engine.
const (
	TemplateApprovalRequested = "approval_requested"
	TemplateWorkflowCompleted = "workflow_completed"
	TemplateWorkflowFailed    = "workflow_failed"
)

// Message is a single delivery to one channel.
type Message struct {
	Channel    string                 `json:"channel"`
	Template   string                 `json:"template"`
	Recipients []string               `json:"recipients,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// Channel delivers messages.
type Channel interface {
	Name() string
	Send(ctx context.Context, message *Message) error
}

// ChannelResult is the outcome of a delivery to one channel.
type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Sender sends a template to channels.
type Sender interface {
	Send(ctx context.Context, channels []string, template string, recipients []string, data map[string]interface{}) []*ChannelResult
}
