package approval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/event"
	"go.uber.org/zap/zaptest"
)

func newGate(t *testing.T, required int) (*Service, *event.Recorder, *execution.Execution, *model.Step, *execution.StepResult) {
	recorder := &event.Recorder{}
	srv := New(WithLogger(zaptest.NewLogger(t)), WithPublisher(recorder))
	step := &model.Step{ID: "gate", Name: "Sign off", Body: &model.ApprovalBody{RequiredApprovers: required, ApproverRoles: []string{"secops"}}}
	anExecution := &execution.Execution{ID: "e1", OrganizationID: "org", WorkflowID: "wf"}
	result := execution.NewStepResult(step, clock.Now())
	return srv, recorder, anExecution, step, result
}

func TestService_RequestApproval(t *testing.T) {
	srv, recorder, anExecution, step, result := newGate(t, 0)
	pending, err := srv.RequestApproval(context.Background(), anExecution, step, result)
	require.NoError(t, err)

	assert.Equal(t, execution.StepAwaitingApproval, result.Status)
	assert.Equal(t, pending.Handle, result.ApprovalHandle)
	assert.Equal(t, DefaultQuorum, pending.RequiredApprovers)
	assert.WithinDuration(t, clock.Now().Add(time.Hour), pending.ExpiresAt, time.Second)

	requested := recorder.Events(event.TypeApprovalRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, []string{"secops"}, requested[0].Payload.(*event.ApprovalRequested).ApproverRoles)

	loaded, err := srv.Lookup(context.Background(), pending.Handle)
	require.NoError(t, err)
	assert.Equal(t, "e1", loaded.ExecutionID)

	_, err = srv.RequestApproval(context.Background(), anExecution, &model.Step{ID: "x", Body: &model.ActionBody{}}, result)
	assert.Error(t, err)
}

func TestService_Decide(t *testing.T) {
	testCases := []struct {
		name      string
		required  int
		decisions []Request
		expect    Outcome
		expectErr error
	}{
		{
			name:      "below quorum",
			required:  2,
			decisions: []Request{{ApproverID: "a", Approved: true}},
			expect:    Outcome{Accepted: true, Approved: 1, Required: 2},
		},
		{
			name:      "quorum reached",
			required:  2,
			decisions: []Request{{ApproverID: "a", Approved: true}, {ApproverID: "b", Approved: true}},
			expect:    Outcome{Accepted: true, Resumed: true, Approved: 2, Required: 2},
		},
		{
			name:      "single rejection is terminal",
			required:  2,
			decisions: []Request{{ApproverID: "a", Approved: true}, {ApproverID: "b", Approved: false}},
			expect:    Outcome{Accepted: true, Rejected: true, Approved: 1, Required: 2},
		},
		{
			name:      "duplicate approver",
			required:  2,
			decisions: []Request{{ApproverID: "a", Approved: true}, {ApproverID: "a", Approved: true}},
			expect:    Outcome{Approved: 1, Required: 2},
			expectErr: ErrDuplicateApprover,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _, anExecution, step, result := newGate(t, tc.required)
			pending, err := srv.RequestApproval(context.Background(), anExecution, step, result)
			require.NoError(t, err)
			var outcome *Outcome
			for i := range tc.decisions {
				outcome, err = srv.Decide(pending, result, &tc.decisions[i])
			}
			if tc.expectErr != nil {
				assert.True(t, errors.Is(err, tc.expectErr))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.expect, *outcome)
		})
	}
}

func TestService_ResolveAndExpire(t *testing.T) {
	srv, _, anExecution, step, result := newGate(t, 1)
	ctx := context.Background()
	pending, err := srv.RequestApproval(ctx, anExecution, step, result)
	require.NoError(t, err)

	assert.Empty(t, srv.Expired(ctx, clock.Now()))
	expired := srv.Expired(ctx, pending.ExpiresAt)
	require.Len(t, expired, 1)

	srv.Expire(result)
	assert.Equal(t, execution.DecisionExpired, result.Approvals[0].Decision)

	assert.True(t, srv.Resolve(ctx, pending.Handle))
	assert.False(t, srv.Resolve(ctx, pending.Handle))
	_, err = srv.Lookup(ctx, pending.Handle)
	assert.True(t, errors.Is(err, ErrNotFound))

	restored := PendingFrom(anExecution, result)
	require.NotNil(t, restored)
	assert.Equal(t, pending.ExpiresAt, restored.ExpiresAt)
	require.NoError(t, srv.Restore(ctx, restored))
	assert.Equal(t, 1, srv.Discard(ctx, anExecution.ID))
	assert.Empty(t, srv.List(ctx))
}

func TestStartSweeper(t *testing.T) {
	var ticks int32
	stop := StartSweeper(context.Background(), 5*time.Millisecond, func(ctx context.Context, now time.Time) {
		atomic.AddInt32(&ticks, 1)
	}, clock.Now)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&ticks) >= 2 }, time.Second, time.Millisecond)
	stop()
	stop()
	observed := atomic.LoadInt32(&ticks)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, observed, atomic.LoadInt32(&ticks))
}
