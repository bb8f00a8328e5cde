// Package action defines the action executor port: the boundary between the
// engine and the concrete integrations that rotate credentials, isolate hosts
// or revoke sessions.
package action

import (
	"context"
	"encoding/json"

	"github.com/viant/remediator/model"
)

// Context carries execution scope to the action executor.
type Context struct {
	ExecutionID    string                 `json:"executionId"`
	OrganizationID string                 `json:"organizationId"`
	StepID         string                 `json:"stepId"`
	DryRun         bool                   `json:"dryRun"`
	Compensating   bool                   `json:"compensating,omitempty"`
	Variables      map[string]interface{} `json:"variables,omitempty"`
}

// Result is the outcome of a single action.
type Result struct {
	Success      bool                   `json:"success"`
	Error        string                 `json:"error,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	RollbackData json.RawMessage        `json:"rollbackData,omitempty"`
}

// Executor performs actions. It returns one result per action in input
// order; individual failures are reported with Success=false and the error
// return is reserved for transport level failures.
type Executor interface {
	ExecuteActions(ctx context.Context, actions []*model.Action, actionContext *Context) ([]*Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, actions []*model.Action, actionContext *Context) ([]*Result, error)

// ExecuteActions calls fn.
func (fn ExecutorFunc) ExecuteActions(ctx context.Context, actions []*model.Action, actionContext *Context) ([]*Result, error) {
	return fn(ctx, actions, actionContext)
}
