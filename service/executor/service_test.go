package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/remediator/internal/actiontest"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/notification"
	"go.uber.org/zap/zaptest"
)

func actionStep(id, actionType string) *model.Step {
	return &model.Step{ID: id, OnFailure: model.PolicyStop, Body: &model.ActionBody{Action: model.Action{Type: actionType, Target: "user-1"}}}
}

func newExecution(steps ...*model.Step) *execution.Execution {
	return &execution.Execution{
		ID:             "e1",
		OrganizationID: "org",
		WorkflowID:     "wf",
		Definition:     &model.Definition{ID: "wf", Steps: steps},
		Status:         execution.StatusRunning,
		Context:        map[string]interface{}{"severity": "high", execution.ContextDryRun: true},
	}
}

func TestService_Execute_Action(t *testing.T) {
	testCases := []struct {
		name         string
		retryCount   int
		failures     int
		expectStatus execution.StepStatus
		expectCalls  int
		expectErr    error
	}{
		{name: "success", expectStatus: execution.StepCompleted, expectCalls: 1},
		{name: "failure without retry", failures: 1, expectStatus: execution.StepFailed, expectCalls: 1, expectErr: ErrActionExecution},
		{name: "fails twice then succeeds", retryCount: 2, failures: 2, expectStatus: execution.StepCompleted, expectCalls: 3},
		{name: "retries exhausted", retryCount: 2, failures: -1, expectStatus: execution.StepFailed, expectCalls: 3, expectErr: ErrActionExecution},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actions := actiontest.New().Fail("rotate", tc.failures, "rotation failed")
			srv := New(actions, WithLogger(zaptest.NewLogger(t)), WithRetryBackoff(time.Millisecond))
			step := actionStep("rotate", "rotate")
			step.RetryCount = tc.retryCount
			anExecution := newExecution(step)

			result := srv.Execute(context.Background(), anExecution, step)
			assert.Equal(t, tc.expectStatus, result.Status)
			assert.Equal(t, tc.expectCalls, result.Attempts)
			assert.Len(t, actions.Calls(), tc.expectCalls)
			assert.True(t, actions.Calls()[0].DryRun)
			if tc.expectErr != nil {
				assert.Contains(t, result.Error, "rotation failed")
				assert.Nil(t, result.RollbackData)
				return
			}
			assert.Empty(t, result.Error)
			assert.JSONEq(t, `{"undo":"rotate","target":"user-1"}`, string(result.RollbackData))
			assert.Equal(t, "rotate", result.Output["applied"])
		})
	}
}

func TestService_Execute_TransportError(t *testing.T) {
	actions := actiontest.New().TransportError("isolate", errors.New("connection refused"))
	srv := New(actions)
	step := actionStep("isolate", "isolate")
	result := srv.Execute(context.Background(), newExecution(step), step)
	assert.Equal(t, execution.StepFailed, result.Status)
	assert.Contains(t, result.Error, "connection refused")
}

func TestService_Execute_Timeout(t *testing.T) {
	actions := actiontest.New().Delay("slow", time.Second)
	srv := New(actions, WithRetryBackoff(time.Millisecond))
	step := actionStep("slow", "slow")
	step.Timeout = 20 * time.Millisecond
	step.RetryCount = 1

	started := time.Now()
	result := srv.Execute(context.Background(), newExecution(step), step)
	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.Equal(t, execution.StepFailed, result.Status)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.Error, ErrStepTimeout.Error())
}

func TestService_Execute_Approval(t *testing.T) {
	gate := approval.New()
	srv := New(actiontest.New(), WithGate(gate))
	step := &model.Step{ID: "gate", RetryCount: 3, Body: &model.ApprovalBody{RequiredApprovers: 2, TimeoutMinutes: 5}}
	anExecution := newExecution(step)

	result := srv.Execute(context.Background(), anExecution, step)
	assert.Equal(t, execution.StepAwaitingApproval, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 2, result.RequiredApprovers)
	pending, err := gate.Lookup(context.Background(), result.ApprovalHandle)
	require.NoError(t, err)
	assert.Equal(t, "gate", pending.StepID)

	withoutGate := New(actiontest.New())
	assert.Equal(t, execution.StepFailed, withoutGate.Execute(context.Background(), anExecution, step).Status)
}

func TestService_Execute_Condition(t *testing.T) {
	testCases := []struct {
		name         string
		expression   string
		expectStatus execution.StepStatus
		expectBranch string
		expectNext   string
	}{
		{name: "true branch", expression: "severity == 'high' && dryRun", expectStatus: execution.StepCompleted, expectBranch: "onTrue", expectNext: "isolate"},
		{name: "false branch", expression: "severity == 'low'", expectStatus: execution.StepCompleted, expectBranch: "onFalse", expectNext: "notify"},
		{name: "step scope", expression: "steps.rotate.status == 'completed'", expectStatus: execution.StepCompleted, expectBranch: "onTrue", expectNext: "isolate"},
		{name: "invalid expression", expression: "severity ==", expectStatus: execution.StepFailed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := New(actiontest.New())
			step := &model.Step{ID: "check", Body: &model.ConditionBody{Expression: tc.expression, OnTrue: "isolate", OnFalse: "notify"}}
			anExecution := newExecution(step)
			anExecution.StepResults = []*execution.StepResult{{StepID: "rotate", Status: execution.StepCompleted}}

			result := srv.Execute(context.Background(), anExecution, step)
			assert.Equal(t, tc.expectStatus, result.Status)
			if tc.expectStatus == execution.StepFailed {
				assert.Contains(t, result.Error, "invalid condition expression")
				return
			}
			assert.Equal(t, tc.expectBranch, result.Branch)
			assert.Equal(t, tc.expectNext, result.Output["next"])
		})
	}
}

func TestService_Execute_Parallel(t *testing.T) {
	actions := actiontest.New().Fail("revoke", -1, "revoke failed").Delay("isolate", 30*time.Millisecond)
	srv := New(actions, WithMaxParallel(2))
	parallel := &model.Step{ID: "fanout", Body: &model.ParallelBody{ChildStepIDs: []string{"a", "b", "c"}}}
	anExecution := newExecution(parallel, actionStep("a", "rotate"), actionStep("b", "revoke"), actionStep("c", "isolate"))

	result := srv.Execute(context.Background(), anExecution, parallel)
	assert.Equal(t, execution.StepFailed, result.Status)
	require.Len(t, result.Children, 3)
	assert.Equal(t, execution.StepCompleted, result.Children[0].Status)
	assert.Equal(t, execution.StepFailed, result.Children[1].Status)
	assert.Equal(t, execution.StepCompleted, result.Children[2].Status)
	assert.Contains(t, result.Error, "b")
	assert.Len(t, actions.Calls(), 3)
}

func TestService_Execute_ParallelRetry(t *testing.T) {
	actions := actiontest.New().Fail("revoke", 1, "revoke failed")
	srv := New(actions, WithRetryBackoff(time.Millisecond))
	parallel := &model.Step{ID: "fanout", RetryCount: 1, Body: &model.ParallelBody{ChildStepIDs: []string{"a", "b"}}}
	anExecution := newExecution(parallel, actionStep("a", "rotate"), actionStep("b", "revoke"))

	result := srv.Execute(context.Background(), anExecution, parallel)
	assert.Equal(t, execution.StepCompleted, result.Status)
	assert.Equal(t, 2, result.Attempts)
	require.Len(t, result.Children, 2)
	assert.Equal(t, execution.StepCompleted, result.Children[0].Status)
	assert.Equal(t, execution.StepCompleted, result.Children[1].Status)
	assert.ElementsMatch(t, []string{"rotate", "revoke", "revoke"}, actions.Types(false))
}

// slowGate registers approvals after a delay, outliving the step timeout.
type slowGate struct {
	*approval.Service
	delay      time.Duration
	registered atomic.Int32
}

func (g *slowGate) RequestApproval(ctx context.Context, anExecution *execution.Execution, step *model.Step, result *execution.StepResult) (*approval.Pending, error) {
	time.Sleep(g.delay)
	pending, err := g.Service.RequestApproval(context.Background(), anExecution, step, result)
	if err == nil {
		g.registered.Add(1)
	}
	return pending, err
}

func TestService_Execute_ApprovalTimeoutReleasesGate(t *testing.T) {
	gate := &slowGate{Service: approval.New(), delay: 50 * time.Millisecond}
	srv := New(actiontest.New(), WithGate(gate))
	step := &model.Step{ID: "gate", Timeout: 10 * time.Millisecond, Body: &model.ApprovalBody{RequiredApprovers: 1, TimeoutMinutes: 5}}

	result := srv.Execute(context.Background(), newExecution(step), step)
	assert.Equal(t, execution.StepFailed, result.Status)
	assert.Contains(t, result.Error, ErrStepTimeout.Error())
	assert.Empty(t, result.ApprovalHandle)

	assert.Eventually(t, func() bool {
		return gate.registered.Load() == 1 && len(gate.List(context.Background())) == 0
	}, time.Second, 5*time.Millisecond)
}

type failingChannel struct{}

func (failingChannel) Name() string { return "pager" }
func (failingChannel) Send(context.Context, *notification.Message) error {
	return errors.New("pager offline")
}

func TestService_Execute_Notification(t *testing.T) {
	notifier := notification.New(notification.WithChannels(notification.NewLogChannel("log", zaptest.NewLogger(t)), failingChannel{}))
	srv := New(actiontest.New(), WithNotifier(notifier))
	step := &model.Step{ID: "notify", Body: &model.NotificationBody{Channels: []string{"log", "pager"}, Template: "incident"}}

	result := srv.Execute(context.Background(), newExecution(step), step)
	assert.Equal(t, execution.StepCompleted, result.Status)
	channels, ok := result.Output["channels"].([]interface{})
	require.True(t, ok)
	require.Len(t, channels, 2)
	assert.Equal(t, true, channels[0].(map[string]interface{})["success"])
	assert.Equal(t, false, channels[1].(map[string]interface{})["success"])
}
