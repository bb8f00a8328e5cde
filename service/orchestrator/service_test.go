package orchestrator

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/remediator/internal/actiontest"
	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/execution/memory"
	"github.com/viant/remediator/service/event"
	"github.com/viant/remediator/service/executor"
	"github.com/viant/remediator/service/rollback"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	service     *Service
	actions     *actiontest.Executor
	gate        *approval.Service
	recorder    *event.Recorder
	checkpoints *memory.Service
	records     *memory.Service
}

func newHarness(t *testing.T, actions *actiontest.Executor, stores ...*memory.Service) *harness {
	logger := zaptest.NewLogger(t)
	ret := &harness{actions: actions, recorder: &event.Recorder{}, checkpoints: memory.New(), records: memory.New()}
	if len(stores) == 2 {
		ret.checkpoints, ret.records = stores[0], stores[1]
	}
	ret.gate = approval.New(approval.WithLogger(logger), approval.WithPublisher(ret.recorder))
	stepExecutor := executor.New(actions, executor.WithGate(ret.gate), executor.WithRetryBackoff(time.Millisecond), executor.WithLogger(logger))
	compensator := rollback.New(actions, rollback.WithPublisher(ret.recorder), rollback.WithLogger(logger))
	ret.service = New(nil, stepExecutor, ret.gate, compensator,
		WithLogger(logger),
		WithPublisher(ret.recorder),
		WithCheckpoints(ret.checkpoints),
		WithRecords(ret.records))
	return ret
}

func (h *harness) start(t *testing.T, definition *model.Definition) *execution.Execution {
	ret, err := h.service.Start(context.Background(), &StartRequest{
		OrganizationID: "acme",
		TriggeredBy:    "alice",
		Definition:     definition,
		Context:        map[string]interface{}{"severity": "critical"},
	})
	require.NoError(t, err)
	return ret
}

func (h *harness) approve(t *testing.T, handle, approver string, approved bool) *approval.Outcome {
	outcome, err := h.service.ProcessApproval(context.Background(), &approval.Request{Handle: handle, ApproverID: approver, Approved: approved})
	require.NoError(t, err)
	return outcome
}

func act(id string, compensate bool) *model.Step {
	ret := &model.Step{ID: id, Name: id, OnFailure: model.PolicyStop, Body: &model.ActionBody{Action: model.Action{Type: id, Target: "user-1"}}}
	if compensate {
		ret.Compensation = &model.Action{Type: "undo-" + id}
	}
	return ret
}

func gate(id string, required int) *model.Step {
	return &model.Step{ID: id, OnFailure: model.PolicyStop, Body: &model.ApprovalBody{RequiredApprovers: required, TimeoutMinutes: 1}}
}

func definition(steps ...*model.Step) *model.Definition {
	return &model.Definition{ID: "wf", Name: "workflow", Steps: steps, Timeout: time.Hour}
}

func stepIDs(results []*execution.StepResult) []string {
	ret := make([]string, len(results))
	for i, result := range results {
		ret[i] = result.StepID
	}
	return ret
}

func TestService_Start_Sequential(t *testing.T) {
	h := newHarness(t, actiontest.New())
	anExecution := h.start(t, definition(act("a", false), act("b", false), act("c", false)))

	assert.Equal(t, execution.StatusCompleted, anExecution.Status)
	assert.Equal(t, []string{"a", "b", "c"}, stepIDs(anExecution.StepResults))
	for _, result := range anExecution.StepResults {
		assert.Equal(t, execution.StepCompleted, result.Status)
		assert.NotEmpty(t, result.RollbackData)
	}
	assert.NotNil(t, anExecution.CompletedAt)
	assert.Equal(t, 0, h.service.Active())

	_, err := h.checkpoints.Load(context.Background(), anExecution.ID)
	assert.True(t, errors.Is(err, dao.ErrNotFound))
	record, err := h.records.Load(context.Background(), anExecution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, record.Status)

	assert.Len(t, h.recorder.Events(event.TypeExecutionStarted), 1)
	assert.Len(t, h.recorder.Events(event.TypeStepCompleted), 3)
	finished := h.recorder.Events(event.TypeExecutionFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, execution.StatusCompleted, finished[0].Payload.(*event.ExecutionFinished).Status)
}

func TestService_FailurePolicies(t *testing.T) {
	testCases := []struct {
		name              string
		policy            model.FailurePolicy
		rollbackOnFailure bool
		expectStatus      execution.Status
		expectResults     []string
		expectCompensated []string
	}{
		{name: "stop", policy: model.PolicyStop, expectStatus: execution.StatusFailed, expectResults: []string{"a", "b", "c"}},
		{name: "continue", policy: model.PolicyContinue, expectStatus: execution.StatusCompleted, expectResults: []string{"a", "b", "c", "d"}},
		{name: "rollback", policy: model.PolicyRollback, expectStatus: execution.StatusRolledBack, expectResults: []string{"a", "b", "c"}, expectCompensated: []string{"undo-b", "undo-a"}},
		{name: "stop with rollback on failure", policy: model.PolicyStop, rollbackOnFailure: true, expectStatus: execution.StatusRolledBack, expectResults: []string{"a", "b", "c"}, expectCompensated: []string{"undo-b", "undo-a"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, actiontest.New().Fail("c", -1, "isolation refused"))
			failing := act("c", true)
			failing.OnFailure = tc.policy
			aDefinition := definition(act("a", true), act("b", true), failing, act("d", false))
			aDefinition.RollbackOnFailure = tc.rollbackOnFailure

			anExecution := h.start(t, aDefinition)
			assert.Equal(t, tc.expectStatus, anExecution.Status)
			assert.Equal(t, tc.expectResults, stepIDs(anExecution.StepResults))
			assert.Equal(t, tc.expectCompensated, h.actions.Types(true))
			assert.Equal(t, execution.StepFailed, anExecution.StepResults[2].Status)
			assert.Contains(t, anExecution.StepResults[2].Error, "isolation refused")
			if tc.expectStatus == execution.StatusRolledBack {
				assert.Equal(t, execution.StepRolledBack, anExecution.StepResults[0].Status)
				assert.Equal(t, execution.StepRolledBack, anExecution.StepResults[1].Status)
				assert.Contains(t, anExecution.Error, "isolation refused")
				assert.Len(t, h.recorder.Events(event.TypeStepRolledBack), 2)
			}
			if tc.expectStatus == execution.StatusFailed {
				assert.Equal(t, execution.StepCompleted, anExecution.StepResults[0].Status)
			}
		})
	}
}

func TestService_Rollback_PartialFailure(t *testing.T) {
	h := newHarness(t, actiontest.New().Fail("c", -1, "boom").Fail("undo-b", -1, "restore failed"))
	failing := act("c", false)
	failing.OnFailure = model.PolicyRollback
	anExecution := h.start(t, definition(act("a", true), act("b", true), failing))

	assert.Equal(t, execution.StatusRolledBack, anExecution.Status)
	assert.Equal(t, []string{"undo-b", "undo-a"}, h.actions.Types(true))
	assert.Equal(t, execution.StepRolledBack, anExecution.StepResults[0].Status)
	assert.Equal(t, execution.StepCompleted, anExecution.StepResults[1].Status)
	assert.Equal(t, "restore failed", anExecution.StepResults[1].RollbackError)
	assert.Contains(t, anExecution.RollbackError, rollback.ErrPartialFailure.Error())
}

func TestService_Retry(t *testing.T) {
	h := newHarness(t, actiontest.New().Fail("a", 2, "flaky"))
	step := act("a", false)
	step.RetryCount = 3
	anExecution := h.start(t, definition(step))

	assert.Equal(t, execution.StatusCompleted, anExecution.Status)
	require.Len(t, anExecution.StepResults, 1)
	assert.Equal(t, 3, anExecution.StepResults[0].Attempts)
	assert.LessOrEqual(t, anExecution.StepResults[0].Attempts, step.RetryCount+1)
}

func TestService_Approval_Quorum(t *testing.T) {
	h := newHarness(t, actiontest.New())
	anExecution := h.start(t, definition(act("a", false), gate("gate", 2), act("b", false)))
	require.Equal(t, execution.StatusAwaitingApproval, anExecution.Status)
	handle := anExecution.PendingResult().ApprovalHandle
	require.NotEmpty(t, handle)
	assert.Equal(t, []string{"a"}, h.actions.Types(false))

	outcome := h.approve(t, handle, "bob", true)
	assert.True(t, outcome.Accepted)
	assert.False(t, outcome.Resumed)
	status, err := h.service.Status(context.Background(), anExecution.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusAwaitingApproval, status.Status)

	duplicate := h.approve(t, handle, "bob", true)
	assert.False(t, duplicate.Accepted)

	outcome = h.approve(t, handle, "carol", true)
	assert.True(t, outcome.Resumed)

	status, err = h.service.Status(context.Background(), anExecution.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, status.Status)
	assert.Equal(t, []string{"a", "gate", "b"}, stepIDs(status.StepResults))
	assert.Len(t, status.StepResults[1].Approvals, 2)
	assert.Equal(t, []string{"a", "b"}, h.actions.Types(false))

	_, err = h.service.ProcessApproval(context.Background(), &approval.Request{Handle: handle, ApproverID: "dave", Approved: true})
	assert.True(t, errors.Is(err, approval.ErrNotFound))
}

func TestService_Approval_ConcurrentQuorum(t *testing.T) {
	h := newHarness(t, actiontest.New())
	anExecution := h.start(t, definition(gate("gate", 2), act("b", false)))
	handle := anExecution.PendingResult().ApprovalHandle

	var wg sync.WaitGroup
	var mux sync.Mutex
	resumed := 0
	for _, approver := range []string{"a1", "a2", "a3", "a4"} {
		wg.Add(1)
		go func(approver string) {
			defer wg.Done()
			outcome, err := h.service.ProcessApproval(context.Background(), &approval.Request{Handle: handle, ApproverID: approver, Approved: true})
			if err != nil {
				assert.True(t, errors.Is(err, approval.ErrNotFound))
				return
			}
			if outcome.Resumed {
				mux.Lock()
				resumed++
				mux.Unlock()
			}
		}(approver)
	}
	wg.Wait()

	assert.Equal(t, 1, resumed)
	assert.Equal(t, []string{"b"}, h.actions.Types(false))
	status, err := h.service.Status(context.Background(), anExecution.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, status.Status)
	assert.Equal(t, 2, status.StepResults[0].Approved())
}

func TestService_Approval_Rejected(t *testing.T) {
	h := newHarness(t, actiontest.New())
	anExecution := h.start(t, definition(act("a", true), gate("gate", 3), act("b", false)))
	handle := anExecution.PendingResult().ApprovalHandle

	h.approve(t, handle, "bob", true)
	outcome := h.approve(t, handle, "mallory", false)
	assert.True(t, outcome.Rejected)

	status, err := h.service.Status(context.Background(), anExecution.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, status.Status)
	assert.Contains(t, status.Error, approval.ErrRejected.Error())
	assert.Equal(t, execution.StepFailed, status.StepResults[1].Status)
	assert.Len(t, status.StepResults[1].Approvals, 2)
	assert.Empty(t, h.actions.Types(true))
	assert.Equal(t, []string{"a"}, h.actions.Types(false))
	assert.Empty(t, h.gate.List(context.Background()))
}

func TestService_Approval_RejectedWithRollback(t *testing.T) {
	h := newHarness(t, actiontest.New())
	approvalStep := gate("gate", 1)
	approvalStep.OnFailure = model.PolicyRollback
	anExecution := h.start(t, definition(act("a", true), approvalStep, act("b", false)))

	h.approve(t, anExecution.PendingResult().ApprovalHandle, "mallory", false)
	status, err := h.service.Status(context.Background(), anExecution.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusRolledBack, status.Status)
	assert.Equal(t, []string{"undo-a"}, h.actions.Types(true))
}

func TestService_Approval_Expiry(t *testing.T) {
	h := newHarness(t, actiontest.New())
	anExecution := h.start(t, definition(gate("gate", 2), act("b", false)))
	handle := anExecution.PendingResult().ApprovalHandle
	h.approve(t, handle, "bob", true)

	h.service.Sweep(context.Background(), clock.Now())
	status, _ := h.service.Status(context.Background(), anExecution.ID, "acme")
	assert.Equal(t, execution.StatusAwaitingApproval, status.Status)

	later := clock.Now().Add(2 * time.Minute)
	h.service.Sweep(context.Background(), later)
	h.service.Sweep(context.Background(), later)

	status, err := h.service.Status(context.Background(), anExecution.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "approval timeout expired")
	assert.Len(t, h.recorder.Events(event.TypeExecutionFinished), 1)
	records := status.StepResults[0].Approvals
	require.Len(t, records, 2)
	assert.Equal(t, execution.DecisionExpired, records[1].Decision)
	assert.Empty(t, h.actions.Types(false))

	_, err = h.service.ProcessApproval(context.Background(), &approval.Request{Handle: handle, ApproverID: "carol", Approved: true})
	assert.True(t, errors.Is(err, approval.ErrNotFound))
}

func TestService_Approval_SweepRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, actiontest.New())
		anExecution := h.start(t, definition(gate("gate", 1), act("b", false)))
		handle := anExecution.PendingResult().ApprovalHandle
		later := clock.Now().Add(2 * time.Minute)

		var wg sync.WaitGroup
		var outcome *approval.Outcome
		var approveErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			outcome, approveErr = h.service.ProcessApproval(context.Background(), &approval.Request{Handle: handle, ApproverID: "bob", Approved: true})
		}()
		go func() {
			defer wg.Done()
			h.service.Sweep(context.Background(), later)
		}()
		wg.Wait()

		status, err := h.service.Status(context.Background(), anExecution.ID, "acme")
		require.NoError(t, err)
		assert.Len(t, h.recorder.Events(event.TypeExecutionFinished), 1)
		assert.Empty(t, h.gate.List(context.Background()))
		if approveErr != nil {
			assert.True(t, errors.Is(approveErr, approval.ErrNotFound))
			assert.Equal(t, execution.StatusFailed, status.Status)
			assert.Empty(t, h.actions.Types(false))
			continue
		}
		assert.True(t, outcome.Resumed)
		assert.Equal(t, execution.StatusCompleted, status.Status)
		assert.Equal(t, []string{"b"}, h.actions.Types(false))
	}
}

func TestService_Parallel(t *testing.T) {
	testCases := []struct {
		name         string
		policy       model.FailurePolicy
		expectStatus execution.Status
	}{
		{name: "continue", policy: model.PolicyContinue, expectStatus: execution.StatusCompleted},
		{name: "stop", policy: model.PolicyStop, expectStatus: execution.StatusFailed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, actiontest.New().Fail("y", -1, "denied"))
			parallel := &model.Step{ID: "fan", OnFailure: tc.policy, Body: &model.ParallelBody{ChildStepIDs: []string{"x", "y", "z"}}}
			anExecution := h.start(t, definition(parallel, act("x", false), act("y", false), act("z", false), act("after", false)))

			assert.Equal(t, tc.expectStatus, anExecution.Status)
			require.NotEmpty(t, anExecution.StepResults)
			aggregate := anExecution.StepResults[0]
			assert.Equal(t, execution.StepFailed, aggregate.Status)
			require.Len(t, aggregate.Children, 3)
			assert.Equal(t, []string{"x", "y", "z"}, stepIDs(aggregate.Children))
			assert.ElementsMatch(t, []string{"x", "y", "z"}, filter(h.actions.Types(false), "x", "y", "z"))
			if tc.expectStatus == execution.StatusCompleted {
				assert.Equal(t, []string{"fan", "after"}, stepIDs(anExecution.StepResults))
			}
			assert.LessOrEqual(t, len(anExecution.StepResults), len(anExecution.Definition.Steps))
		})
	}
}

func filter(values []string, allowed ...string) []string {
	var ret []string
	for _, value := range values {
		for _, candidate := range allowed {
			if value == candidate {
				ret = append(ret, value)
			}
		}
	}
	return ret
}

func TestService_Condition(t *testing.T) {
	testCases := []struct {
		name          string
		expression    string
		expectResults []string
		expectActions []string
	}{
		{name: "jump forward", expression: "severity == 'critical'", expectResults: []string{"check", "low", "high", "tail"}, expectActions: []string{"high", "tail"}},
		{name: "next step", expression: "severity == 'low'", expectResults: []string{"check", "low", "high", "tail"}, expectActions: []string{"low", "high", "tail"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, actiontest.New())
			check := &model.Step{ID: "check", OnFailure: model.PolicyStop, Body: &model.ConditionBody{Expression: tc.expression, OnTrue: "high"}}
			anExecution := h.start(t, definition(check, act("low", false), act("high", false), act("tail", false)))

			assert.Equal(t, execution.StatusCompleted, anExecution.Status)
			assert.Equal(t, tc.expectResults, stepIDs(anExecution.StepResults))
			assert.Equal(t, tc.expectActions, h.actions.Types(false))
			if len(tc.expectActions) == 2 {
				assert.Equal(t, execution.StepSkipped, anExecution.StepResults[1].Status)
				assert.Equal(t, "onTrue", anExecution.StepResults[0].Branch)
			}
		})
	}
}

func TestService_GlobalTimeout(t *testing.T) {
	h := newHarness(t, actiontest.New().Delay("slow", time.Second))
	slow := act("slow", false)
	slow.Timeout = 5 * time.Second
	slow.OnFailure = model.PolicyContinue
	aDefinition := definition(act("a", true), slow, act("b", false))
	aDefinition.Timeout = 50 * time.Millisecond
	aDefinition.RollbackOnFailure = true

	started := time.Now()
	anExecution := h.start(t, aDefinition)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, execution.StatusRolledBack, anExecution.Status)
	assert.Contains(t, anExecution.Error, ErrGlobalTimeout.Error())
	assert.Equal(t, []string{"undo-a"}, h.actions.Types(true))
	assert.NotContains(t, h.actions.Types(false), "b")
}

func TestService_GlobalTimeout_AwaitingApproval(t *testing.T) {
	h := newHarness(t, actiontest.New())
	aDefinition := definition(gate("gate", 1), act("b", false))
	aDefinition.Timeout = 30 * time.Second
	anExecution := h.start(t, aDefinition)

	h.service.Sweep(context.Background(), anExecution.StartedAt.Add(31*time.Second))
	status, err := h.service.Status(context.Background(), anExecution.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, status.Status)
	assert.Contains(t, status.Error, ErrGlobalTimeout.Error())
	assert.Empty(t, h.gate.List(context.Background()))
}

func TestService_Cancel(t *testing.T) {
	h := newHarness(t, actiontest.New().Delay("slow", 2*time.Second))
	done := make(chan *execution.Execution, 1)
	go func() {
		ret, err := h.service.Start(context.Background(), &StartRequest{OrganizationID: "acme", Definition: definition(act("a", true), act("slow", false), act("b", false))})
		assert.NoError(t, err)
		done <- ret
	}()
	require.Eventually(t, func() bool {
		return len(h.actions.Types(false)) == 1 && h.service.Active() == 1
	}, time.Second, time.Millisecond)
	var id string
	for _, e := range h.service.active.all() {
		id = e.snapshot.Load().ID
	}

	started := time.Now()
	cancelled, err := h.service.Cancel(context.Background(), id, "bob", "false positive")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, execution.StatusCancelled, cancelled.Status)
	assert.Equal(t, "false positive", cancelled.CancelReason)
	assert.Equal(t, "bob", cancelled.CancelledBy)

	result := <-done
	require.NotNil(t, result)
	assert.Equal(t, execution.StatusCancelled, result.Status)
	assert.Equal(t, []string{"a"}, h.actions.Types(false))
	assert.Empty(t, h.actions.Types(true))
	assert.Len(t, h.recorder.Events(event.TypeExecutionCancelled), 1)

	_, err = h.service.Cancel(context.Background(), id, "bob", "again")
	assert.True(t, errors.Is(err, ErrTerminalExecution))
	assert.True(t, errors.Is(err, ErrExecutionNotFound))
	_, err = h.service.Cancel(context.Background(), "missing", "bob", "")
	assert.True(t, errors.Is(err, ErrExecutionNotFound))
	assert.False(t, errors.Is(err, ErrTerminalExecution))
}

func TestService_Cancel_AwaitingApproval(t *testing.T) {
	h := newHarness(t, actiontest.New())
	anExecution := h.start(t, definition(gate("gate", 1), act("b", false)))
	handle := anExecution.PendingResult().ApprovalHandle

	cancelled, err := h.service.Cancel(context.Background(), anExecution.ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCancelled, cancelled.Status)
	assert.Empty(t, h.gate.List(context.Background()))

	_, err = h.service.ProcessApproval(context.Background(), &approval.Request{Handle: handle, ApproverID: "carol", Approved: true})
	assert.True(t, errors.Is(err, approval.ErrNotFound))
	assert.Empty(t, h.actions.Types(false))
}

func TestService_Recover(t *testing.T) {
	checkpoints, records := memory.New(), memory.New()
	first := newHarness(t, actiontest.New(), checkpoints, records)
	waiting := first.start(t, definition(gate("gate", 1), act("b", false)))
	handle := waiting.PendingResult().ApprovalHandle

	interrupted := &execution.Execution{
		ID:             "interrupted",
		OrganizationID: "acme",
		WorkflowID:     "wf",
		Definition:     definition(act("a", true), act("b", false)),
		Status:         execution.StatusRunning,
		CurrentStep:    1,
		StartedAt:      clock.Now(),
		StepResults: []*execution.StepResult{
			{StepID: "a", Status: execution.StepCompleted, RollbackData: []byte(`{}`)},
			{StepID: "b", Status: execution.StepRunning},
		},
	}
	interrupted.Definition.RollbackOnFailure = true
	require.NoError(t, checkpoints.Save(context.Background(), interrupted))

	second := newHarness(t, actiontest.New(), checkpoints, records)
	recovery, err := second.service.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Recovery{Restored: 1, Interrupted: 1}, recovery)

	record, err := second.service.Status(context.Background(), "interrupted", "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusRolledBack, record.Status)
	assert.Contains(t, record.Error, ErrInterrupted.Error())
	assert.Equal(t, execution.StepFailed, record.StepResults[1].Status)
	assert.Equal(t, []string{"undo-a"}, second.actions.Types(true))

	outcome := second.approve(t, handle, "bob", true)
	assert.True(t, outcome.Resumed)
	status, err := second.service.Status(context.Background(), waiting.ID, "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, status.Status)
	assert.Equal(t, []string{"b"}, second.actions.Types(false))

	remaining, err := checkpoints.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestService_StatusAndList(t *testing.T) {
	h := newHarness(t, actiontest.New())
	completed := h.start(t, definition(act("a", false)))
	waiting := h.start(t, definition(gate("gate", 1)))
	other, err := h.service.Start(context.Background(), &StartRequest{OrganizationID: "globex", Definition: definition(act("a", false))})
	require.NoError(t, err)

	status, err := h.service.Status(context.Background(), completed.ID, "globex")
	require.NoError(t, err)
	assert.Nil(t, status)
	status, err = h.service.Status(context.Background(), "missing", "acme")
	require.NoError(t, err)
	assert.Nil(t, status)

	page, err := h.service.List(context.Background(), &Query{OrganizationID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.ElementsMatch(t, []string{completed.ID, waiting.ID}, []string{page.Items[0].ID, page.Items[1].ID})

	page, err = h.service.List(context.Background(), &Query{OrganizationID: "acme", Status: execution.StatusAwaitingApproval})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, waiting.ID, page.Items[0].ID)

	page, err = h.service.List(context.Background(), &Query{OrganizationID: "acme", Page: 2, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	page, err = h.service.List(context.Background(), &Query{OrganizationID: "acme", Page: 3, Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = h.service.List(context.Background(), &Query{OrganizationID: "acme", Page: math.MaxInt/50 + 1, Limit: MaxPageSize})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Empty(t, page.Items)

	page, err = h.service.List(context.Background(), &Query{OrganizationID: "globex", WorkflowID: "wf"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, other.ID, page.Items[0].ID)
}

func TestService_Start_Errors(t *testing.T) {
	h := newHarness(t, actiontest.New())
	_, err := h.service.Start(context.Background(), &StartRequest{OrganizationID: "acme", Definition: &model.Definition{ID: "empty"}})
	assert.Error(t, err)
	_, err = h.service.Start(context.Background(), &StartRequest{Definition: definition(act("a", false))})
	assert.Error(t, err)

	anExecution, err := h.service.Start(context.Background(), &StartRequest{OrganizationID: "acme", DryRun: true, Definition: definition(act("a", false))})
	require.NoError(t, err)
	assert.True(t, anExecution.IsDryRun())
	assert.True(t, h.actions.Calls()[0].DryRun)
}

func TestService_Resume(t *testing.T) {
	h := newHarness(t, actiontest.New())
	waiting := h.start(t, definition(gate("gate", 1), act("b", false)))
	assert.Error(t, h.service.Resume(context.Background(), waiting.ID))
	assert.True(t, errors.Is(h.service.Resume(context.Background(), "missing"), ErrExecutionNotFound))
}
