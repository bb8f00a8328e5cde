package execution

import (
	"encoding/json"
	"time"

	"github.com/viant/remediator/model"
	"github.com/viant/toolbox"
)

// Status represents the execution state machine
type Status string

const (
	StatusRunning          Status = "running"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
	StatusRolledBack       Status = "rolled_back"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRolledBack:
		return true
	}
	return false
}

// ContextDryRun is the context key holding the dry-run flag.
const ContextDryRun = "dryRun"

// Target references the identity or threat being remediated.
type Target struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Execution represents a single run of a workflow definition
type Execution struct {
	ID             string                 `json:"id"`
	WorkflowID     string                 `json:"workflowId"`
	OrganizationID string                 `json:"organizationId"`
	Definition     *model.Definition      `json:"definition"`
	Status         Status                 `json:"status"`
	CurrentStep    int                    `json:"currentStep"`
	Context        map[string]interface{} `json:"context,omitempty"`
	StepResults    []*StepResult          `json:"stepResults"`
	StartedAt      time.Time              `json:"startedAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty"`
	TriggeredBy    string                 `json:"triggeredBy"`
	Target         *Target                `json:"target,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CancelledBy    string                 `json:"cancelledBy,omitempty"`
	CancelReason   string                 `json:"cancelReason,omitempty"`
	RollbackError  string                 `json:"rollbackError,omitempty"`
}

// IsDryRun reports whether actions should only be evaluated.
func (e *Execution) IsDryRun() bool {
	if e.Context == nil {
		return false
	}
	value, ok := e.Context[ContextDryRun]
	if !ok || value == nil {
		return false
	}
	return toolbox.AsBoolean(value)
}

// Deadline returns the global deadline; zero when the definition has no timeout.
func (e *Execution) Deadline() time.Time {
	if e.Definition == nil || e.Definition.Timeout <= 0 {
		return time.Time{}
	}
	return e.StartedAt.Add(e.Definition.Timeout)
}

// Result returns the top-level result recorded for a step id.
func (e *Execution) Result(stepID string) *StepResult {
	for i := len(e.StepResults) - 1; i >= 0; i-- {
		if e.StepResults[i].StepID == stepID {
			return e.StepResults[i]
		}
	}
	return nil
}

// PendingResult returns the result of the approval step the execution waits on.
func (e *Execution) PendingResult() *StepResult {
	if len(e.StepResults) == 0 {
		return nil
	}
	last := e.StepResults[len(e.StepResults)-1]
	if last.Status != StepAwaitingApproval {
		return nil
	}
	return last
}

// Clone returns a deep copy. The definition is shared because it is immutable.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	ret := *e
	ret.Context = cloneMap(e.Context)
	ret.CompletedAt = cloneTime(e.CompletedAt)
	if e.Target != nil {
		target := *e.Target
		ret.Target = &target
	}
	if e.StepResults != nil {
		ret.StepResults = make([]*StepResult, len(e.StepResults))
		for i, result := range e.StepResults {
			ret.StepResults[i] = result.Clone()
		}
	}
	return &ret
}

// StepStatus represents a step result state
type StepStatus string

const (
	StepPending          StepStatus = "pending"
	StepRunning          StepStatus = "running"
	StepAwaitingApproval StepStatus = "awaiting_approval"
	StepCompleted        StepStatus = "completed"
	StepFailed           StepStatus = "failed"
	StepSkipped          StepStatus = "skipped"
	StepRolledBack       StepStatus = "rolled_back"
)

// StepResult captures the outcome of one step
type StepResult struct {
	StepID        string                 `json:"stepId"`
	StepName      string                 `json:"stepName,omitempty"`
	Kind          model.Kind             `json:"kind"`
	Status        StepStatus             `json:"status"`
	StartedAt     *time.Time             `json:"startedAt,omitempty"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	Attempts      int                    `json:"attempts,omitempty"`
	Output        map[string]interface{} `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	RollbackData  json.RawMessage        `json:"rollbackData,omitempty"`
	RollbackError string                 `json:"rollbackError,omitempty"`
	// Branch is onTrue or onFalse for condition steps
	Branch   string        `json:"branch,omitempty"`
	Children []*StepResult `json:"children,omitempty"`

	Approvals         []*ApprovalRecord `json:"approvals,omitempty"`
	ApprovalHandle    string            `json:"approvalHandle,omitempty"`
	ApprovalExpiresAt *time.Time        `json:"approvalExpiresAt,omitempty"`
	RequiredApprovers int               `json:"requiredApprovers,omitempty"`
}

// NewStepResult creates a running result for step.
func NewStepResult(step *model.Step, startedAt time.Time) *StepResult {
	return &StepResult{
		StepID:    step.ID,
		StepName:  step.Name,
		Kind:      step.Kind(),
		Status:    StepRunning,
		StartedAt: &startedAt,
	}
}

// Complete marks the result completed.
func (r *StepResult) Complete(at time.Time) {
	r.Status = StepCompleted
	r.Error = ""
	r.CompletedAt = &at
}

// Fail marks the result failed with err.
func (r *StepResult) Fail(at time.Time, err error) {
	r.Status = StepFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.RollbackData = nil
	r.CompletedAt = &at
}

// Approved returns the number of approved records.
func (r *StepResult) Approved() int {
	count := 0
	for _, record := range r.Approvals {
		if record.Decision == DecisionApproved {
			count++
		}
	}
	return count
}

// HasApprover reports whether approverID already recorded a decision.
func (r *StepResult) HasApprover(approverID string) bool {
	for _, record := range r.Approvals {
		if record.ApproverID == approverID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the result.
func (r *StepResult) Clone() *StepResult {
	if r == nil {
		return nil
	}
	ret := *r
	ret.StartedAt = cloneTime(r.StartedAt)
	ret.CompletedAt = cloneTime(r.CompletedAt)
	ret.ApprovalExpiresAt = cloneTime(r.ApprovalExpiresAt)
	ret.Output = cloneMap(r.Output)
	if r.RollbackData != nil {
		ret.RollbackData = append(json.RawMessage(nil), r.RollbackData...)
	}
	if r.Children != nil {
		ret.Children = make([]*StepResult, len(r.Children))
		for i, child := range r.Children {
			ret.Children[i] = child.Clone()
		}
	}
	if r.Approvals != nil {
		ret.Approvals = make([]*ApprovalRecord, len(r.Approvals))
		for i, record := range r.Approvals {
			copied := *record
			ret.Approvals[i] = &copied
		}
	}
	return &ret
}

// Decision is an approver verdict
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionExpired  Decision = "expired"
)

// ApprovalRecord is a single approver decision on an approval gate
type ApprovalRecord struct {
	ApproverID    string    `json:"approverId"`
	ApproverEmail string    `json:"approverEmail,omitempty"`
	Decision      Decision  `json:"decision"`
	Comment       string    `json:"comment,omitempty"`
	DecidedAt     time.Time `json:"decidedAt"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ret := *t
	return &ret
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	ret := make(map[string]interface{}, len(m))
	for k, v := range m {
		ret[k] = cloneValue(v)
	}
	return ret
}

func cloneValue(v interface{}) interface{} {
	switch actual := v.(type) {
	case map[string]interface{}:
		return cloneMap(actual)
	case []interface{}:
		ret := make([]interface{}, len(actual))
		for i, item := range actual {
			ret[i] = cloneValue(item)
		}
		return ret
	case []string:
		return append([]string(nil), actual...)
	}
	return v
}
