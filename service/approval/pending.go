package approval

import "time"

// Pending is an outstanding approval gate.
type Pending struct {
	Handle            string    `json:"handle"`
	ExecutionID       string    `json:"executionId"`
	OrganizationID    string    `json:"organizationId,omitempty"`
	StepID            string    `json:"stepId"`
	RequiredApprovers int       `json:"requiredApprovers"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// IsExpired reports whether the gate expired at now.
func (p *Pending) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Request is an approver decision submitted for a handle.
type Request struct {
	Handle        string `json:"handle"`
	ApproverID    string `json:"approverId"`
	ApproverEmail string `json:"approverEmail,omitempty"`
	Approved      bool   `json:"approved"`
	Comment       string `json:"comment,omitempty"`
}

// Outcome describes the effect of a decision.
type Outcome struct {
	// Accepted is false when the decision was ignored
	Accepted bool `json:"accepted"`
	// Resumed is set when quorum was reached
	Resumed bool `json:"resumed"`
	// Rejected is set when the decision closed the gate negatively
	Rejected bool `json:"rejected"`
	Approved int  `json:"approved"`
	Required int  `json:"required"`
}

// Final reports whether the outcome closed the gate.
func (o *Outcome) Final() bool { return o.Resumed || o.Rejected }
