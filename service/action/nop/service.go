package nop

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/action"
)

// Call records one executed action.
type Call struct {
	Action  model.Action
	Context action.Context
}

// Service performs no operation and reports success for every action. The
// rollback data echoes the action so compensation can be traced end to end.
// It backs dry-run deployments and tests.
type Service struct {
	mu    sync.Mutex
	calls []Call
}

var _ action.Executor = (*Service)(nil)

// New creates a no-op executor.
func New() *Service {
	return &Service{}
}

// ExecuteActions records actions and returns success results.
func (s *Service) ExecuteActions(ctx context.Context, actions []*model.Action, actionContext *action.Context) ([]*action.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]*action.Result, len(actions))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, anAction := range actions {
		call := Call{Action: *anAction}
		if actionContext != nil {
			call.Context = *actionContext
		}
		s.calls = append(s.calls, call)
		rollbackData, _ := json.Marshal(map[string]interface{}{"type": anAction.Type, "target": anAction.Target})
		results[i] = &action.Result{
			Success:      true,
			Details:      map[string]interface{}{"noop": true},
			RollbackData: rollbackData,
		}
	}
	return results, nil
}

// Calls returns recorded calls in execution order.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
