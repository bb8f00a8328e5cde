package model

// Playbook is the stored template a workflow definition is compiled from.
type Playbook struct {
	ID             string                 `json:"id" yaml:"id"`
	OrganizationID string                 `json:"organizationId" yaml:"organizationId"`
	Name           string                 `json:"name" yaml:"name"`
	Description    string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Trigger        map[string]interface{} `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Actions        []*PlaybookAction      `json:"actions" yaml:"actions"`

	TimeoutSeconds    int  `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	RollbackOnFailure bool `json:"rollbackOnFailure,omitempty" yaml:"rollbackOnFailure,omitempty"`
	NotifyOnComplete  bool `json:"notifyOnComplete,omitempty" yaml:"notifyOnComplete,omitempty"`
	NotifyOnFailure   bool `json:"notifyOnFailure,omitempty" yaml:"notifyOnFailure,omitempty"`
}

// PlaybookAction is a loosely typed entry of a playbook action list.
type PlaybookAction struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Kind defaults to action
	Kind Kind `json:"kind,omitempty" yaml:"kind,omitempty"`

	Type       string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Target     string                 `json:"target,omitempty" yaml:"target,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Provider   string                 `json:"provider,omitempty" yaml:"provider,omitempty"`

	RequiresApproval       bool     `json:"requiresApproval,omitempty" yaml:"requiresApproval,omitempty"`
	RequiredApprovers      int      `json:"requiredApprovers,omitempty" yaml:"requiredApprovers,omitempty"`
	ApproverRoles          []string `json:"approverRoles,omitempty" yaml:"approverRoles,omitempty"`
	ApprovalTimeoutMinutes int      `json:"approvalTimeoutMinutes,omitempty" yaml:"approvalTimeoutMinutes,omitempty"`

	BlastRadius    string        `json:"blastRadius,omitempty" yaml:"blastRadius,omitempty"`
	TimeoutSeconds int           `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	RetryCount     int           `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
	OnFailure      FailurePolicy `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
	Compensation   *Action       `json:"compensation,omitempty" yaml:"compensation,omitempty"`

	Expression string   `json:"expression,omitempty" yaml:"expression,omitempty"`
	OnTrue     string   `json:"onTrue,omitempty" yaml:"onTrue,omitempty"`
	OnFalse    string   `json:"onFalse,omitempty" yaml:"onFalse,omitempty"`
	Children   []string `json:"children,omitempty" yaml:"children,omitempty"`
	Channels   []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	Template   string   `json:"template,omitempty" yaml:"template,omitempty"`
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
}

// BlastRadiusCritical marks actions whose failure triggers compensation by default.
const BlastRadiusCritical = "critical"
