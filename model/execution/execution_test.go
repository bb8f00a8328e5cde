package execution

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/remediator/model"
)

func TestExecution_Clone(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exec := &Execution{
		ID:      "e1",
		Status:  StatusRunning,
		Context: map[string]interface{}{"dryRun": true, "target": map[string]interface{}{"id": "u1"}},
		Target:  &Target{Type: "identity", ID: "u1"},
		StepResults: []*StepResult{
			{StepID: "a", Status: StepCompleted, StartedAt: &now, RollbackData: json.RawMessage(`{"k":1}`),
				Approvals: []*ApprovalRecord{{ApproverID: "alice", Decision: DecisionApproved}}},
		},
	}
	cloned := exec.Clone()
	assert.EqualValues(t, exec, cloned)

	cloned.Context["target"].(map[string]interface{})["id"] = "u2"
	cloned.StepResults[0].Status = StepRolledBack
	cloned.StepResults[0].Approvals[0].Decision = DecisionRejected
	cloned.Target.ID = "u2"

	assert.Equal(t, "u1", exec.Context["target"].(map[string]interface{})["id"])
	assert.Equal(t, StepCompleted, exec.StepResults[0].Status)
	assert.Equal(t, DecisionApproved, exec.StepResults[0].Approvals[0].Decision)
	assert.Equal(t, "u1", exec.Target.ID)
}

func TestStatus_IsTerminal(t *testing.T) {
	testCases := []struct {
		status   Status
		expected bool
	}{
		{StatusRunning, false},
		{StatusAwaitingApproval, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusRolledBack, true},
	}
	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.status.IsTerminal())
		})
	}
}

func TestExecution_Helpers(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	exec := &Execution{
		StartedAt:  start,
		Definition: &model.Definition{Timeout: time.Hour},
		Context:    map[string]interface{}{"dryRun": "true"},
	}
	assert.True(t, exec.IsDryRun())
	assert.Equal(t, start.Add(time.Hour), exec.Deadline())
	assert.Nil(t, exec.PendingResult())

	result := NewStepResult(&model.Step{ID: "gate", Body: &model.ApprovalBody{RequiredApprovers: 2}}, start)
	result.Status = StepAwaitingApproval
	result.Approvals = []*ApprovalRecord{
		{ApproverID: "alice", Decision: DecisionApproved},
		{ApproverID: "bob", Decision: DecisionRejected},
	}
	exec.StepResults = append(exec.StepResults, result)
	assert.Same(t, result, exec.PendingResult())
	assert.Same(t, result, exec.Result("gate"))
	assert.Equal(t, 1, result.Approved())
	assert.True(t, result.HasApprover("bob"))
	assert.False(t, result.HasApprover("carol"))
	assert.Equal(t, model.KindApproval, result.Kind)

	result.RollbackData = json.RawMessage(`{}`)
	result.Fail(start, errors.New("boom"))
	assert.Equal(t, StepFailed, result.Status)
	assert.Equal(t, "boom", result.Error)
	assert.Nil(t, result.RollbackData)
}
