package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/internal/idgen"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/store"
	"github.com/viant/remediator/service/event"
	"go.uber.org/zap"
)

const (
	// DefaultQuorum applies when a gate does not declare required approvers.
	DefaultQuorum = 1
	// DefaultTimeoutMinutes applies when a gate does not declare a timeout.
	DefaultTimeoutMinutes = 60
)

// Service is the approval gate manager.
type Service struct {
	pending        *store.MemoryStore[string, Pending]
	publisher      event.Publisher
	logger         *zap.Logger
	defaultQuorum  int
	defaultTimeout time.Duration
}

// Option customises the service
type Option func(s *Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(publisher event.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithDefaults overrides gate defaults; non positive values are ignored.
func WithDefaults(quorum int, timeoutMinutes int) Option {
	return func(s *Service) {
		if quorum > 0 {
			s.defaultQuorum = quorum
		}
		if timeoutMinutes > 0 {
			s.defaultTimeout = time.Duration(timeoutMinutes) * time.Minute
		}
	}
}

// New creates an approval gate manager.
func New(options ...Option) *Service {
	ret := &Service{
		pending: store.NewMemoryStore[string, Pending](func(p *Pending) string { return p.Handle },
			store.WithClone[string, Pending](func(p *Pending) *Pending { c := *p; return &c })),
		logger:         zap.NewNop(),
		defaultQuorum:  DefaultQuorum,
		defaultTimeout: DefaultTimeoutMinutes * time.Minute,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// RequestApproval opens a gate for step and records its handle, quorum and
// expiry on result. The call never waits for a decision.
func (s *Service) RequestApproval(ctx context.Context, anExecution *execution.Execution, step *model.Step, result *execution.StepResult) (*Pending, error) {
	body := step.Approval()
	if body == nil {
		return nil, fmt.Errorf("step %s is not an approval step", step.ID)
	}
	required := body.RequiredApprovers
	if required <= 0 {
		required = s.defaultQuorum
	}
	timeout := s.defaultTimeout
	if body.TimeoutMinutes > 0 {
		timeout = time.Duration(body.TimeoutMinutes) * time.Minute
	}
	now := clock.Now()
	pending := &Pending{
		Handle:            idgen.NewHandle(),
		ExecutionID:       anExecution.ID,
		OrganizationID:    anExecution.OrganizationID,
		StepID:            step.ID,
		RequiredApprovers: required,
		ExpiresAt:         now.Add(timeout),
	}
	if err := s.pending.Save(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to register approval %s: %w", step.ID, err)
	}
	expiresAt := pending.ExpiresAt
	result.Status = execution.StepAwaitingApproval
	result.ApprovalHandle = pending.Handle
	result.ApprovalExpiresAt = &expiresAt
	result.RequiredApprovers = required

	s.logger.Info("approval requested",
		zap.String("execution_id", anExecution.ID),
		zap.String("step_id", step.ID),
		zap.String("handle", pending.Handle),
		zap.Int("required", required),
		zap.Time("expires_at", expiresAt))
	s.publish(ctx, event.NewEvent(anExecution, step.ID, &event.ApprovalRequested{
		Handle:            pending.Handle,
		StepName:          step.Name,
		RequiredApprovers: required,
		ApproverRoles:     body.ApproverRoles,
		Channels:          body.Channels,
		ExpiresAt:         expiresAt,
	}))
	return pending, nil
}

// Lookup returns the pending gate for handle or ErrNotFound.
func (s *Service) Lookup(ctx context.Context, handle string) (*Pending, error) {
	if handle == "" {
		return nil, ErrNotFound
	}
	ret, err := s.pending.Load(ctx, handle)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
		}
		return nil, err
	}
	return ret, nil
}

// Decide appends the approver decision to result and computes the outcome.
// The caller must hold the execution lock and must call Resolve when the
// outcome is final.
func (s *Service) Decide(pending *Pending, result *execution.StepResult, request *Request) (*Outcome, error) {
	if result == nil || result.ApprovalHandle != pending.Handle || result.Status != execution.StepAwaitingApproval {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pending.Handle)
	}
	outcome := &Outcome{Required: pending.RequiredApprovers, Approved: result.Approved()}
	if request.ApproverID == "" {
		return outcome, fmt.Errorf("approver id is required")
	}
	if result.HasApprover(request.ApproverID) {
		return outcome, fmt.Errorf("%w: %s", ErrDuplicateApprover, request.ApproverID)
	}
	decision := execution.DecisionApproved
	if !request.Approved {
		decision = execution.DecisionRejected
	}
	result.Approvals = append(result.Approvals, &execution.ApprovalRecord{
		ApproverID:    request.ApproverID,
		ApproverEmail: request.ApproverEmail,
		Decision:      decision,
		Comment:       request.Comment,
		DecidedAt:     clock.Now(),
	})
	outcome.Accepted = true
	outcome.Approved = result.Approved()
	switch {
	case !request.Approved:
		outcome.Rejected = true
	case outcome.Approved >= pending.RequiredApprovers:
		outcome.Resumed = true
	}
	return outcome, nil
}

// Expire records the expiry on result.
func (s *Service) Expire(result *execution.StepResult) {
	result.Approvals = append(result.Approvals, &execution.ApprovalRecord{
		ApproverID: "system",
		Decision:   execution.DecisionExpired,
		DecidedAt:  clock.Now(),
	})
}

// Resolve removes the gate; it returns false when the gate was already removed.
func (s *Service) Resolve(ctx context.Context, handle string) bool {
	return s.pending.Delete(ctx, handle) == nil
}

// Discard removes every gate of an execution.
func (s *Service) Discard(ctx context.Context, executionID string) int {
	all, _ := s.pending.List(ctx)
	count := 0
	for _, p := range all {
		if p.ExecutionID == executionID && s.Resolve(ctx, p.Handle) {
			count++
		}
	}
	return count
}

// Restore re-registers a gate rebuilt from persisted execution state.
func (s *Service) Restore(ctx context.Context, pending *Pending) error {
	if err := s.pending.Save(ctx, pending); err != nil {
		return fmt.Errorf("failed to restore approval %s: %w", pending.Handle, err)
	}
	s.logger.Info("approval restored",
		zap.String("execution_id", pending.ExecutionID),
		zap.String("handle", pending.Handle))
	return nil
}

// Expired returns gates expired at now, ordered by expiry.
func (s *Service) Expired(ctx context.Context, now time.Time) []*Pending {
	all, _ := s.pending.List(ctx)
	var ret []*Pending
	for _, p := range all {
		if p.IsExpired(now) {
			ret = append(ret, p)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ExpiresAt.Before(ret[j].ExpiresAt) })
	return ret
}

// List returns every pending gate.
func (s *Service) List(ctx context.Context) []*Pending {
	ret, _ := s.pending.List(ctx)
	return ret
}

func (s *Service) publish(ctx context.Context, e *event.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event", string(e.Type())), zap.Error(err))
	}
}

// PendingFrom rebuilds a gate from the awaiting result of anExecution; nil
// when the result carries no handle.
func PendingFrom(anExecution *execution.Execution, result *execution.StepResult) *Pending {
	if result == nil || result.ApprovalHandle == "" {
		return nil
	}
	ret := &Pending{
		Handle:            result.ApprovalHandle,
		ExecutionID:       anExecution.ID,
		OrganizationID:    anExecution.OrganizationID,
		StepID:            result.StepID,
		RequiredApprovers: result.RequiredApprovers,
	}
	if ret.RequiredApprovers <= 0 {
		ret.RequiredApprovers = DefaultQuorum
	}
	if result.ApprovalExpiresAt != nil {
		ret.ExpiresAt = *result.ApprovalExpiresAt
	}
	return ret
}
