// Package actiontest provides a scriptable action executor for tests.
package actiontest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/action"
)

// Call records one executed action.
type Call struct {
	Type         string
	Target       string
	StepID       string
	Compensating bool
	DryRun       bool
	RollbackData json.RawMessage
	At           time.Time
}

type script struct {
	failures int
	message  string
	delay    time.Duration
	errTrans error
}

// Executor succeeds by default; failures and delays are scripted per action type.
type Executor struct {
	mux     sync.Mutex
	scripts map[string]*script
	calls   []Call
}

var _ action.Executor = (*Executor)(nil)

// New creates an executor.
func New() *Executor {
	return &Executor{scripts: map[string]*script{}}
}

func (e *Executor) script(actionType string) *script {
	ret, ok := e.scripts[actionType]
	if !ok {
		ret = &script{}
		e.scripts[actionType] = ret
	}
	return ret
}

// Fail makes the next times calls of actionType report failure; negative means always.
func (e *Executor) Fail(actionType string, times int, message string) *Executor {
	e.mux.Lock()
	defer e.mux.Unlock()
	s := e.script(actionType)
	s.failures, s.message = times, message
	return e
}

// Delay makes calls of actionType block for d or until ctx is done.
func (e *Executor) Delay(actionType string, d time.Duration) *Executor {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.script(actionType).delay = d
	return e
}

// TransportError makes calls of actionType return err.
func (e *Executor) TransportError(actionType string, err error) *Executor {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.script(actionType).errTrans = err
	return e
}

// ExecuteActions runs scripted behaviour for every action.
func (e *Executor) ExecuteActions(ctx context.Context, actions []*model.Action, actionContext *action.Context) ([]*action.Result, error) {
	results := make([]*action.Result, 0, len(actions))
	for _, anAction := range actions {
		e.mux.Lock()
		s := *e.script(anAction.Type)
		e.mux.Unlock()
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.delay):
			}
		}
		e.mux.Lock()
		call := Call{Type: anAction.Type, Target: anAction.Target, RollbackData: anAction.RollbackData, At: time.Now()}
		if actionContext != nil {
			call.StepID, call.Compensating, call.DryRun = actionContext.StepID, actionContext.Compensating, actionContext.DryRun
		}
		e.calls = append(e.calls, call)
		current := e.script(anAction.Type)
		fail := current.failures != 0
		if current.failures > 0 {
			current.failures--
		}
		e.mux.Unlock()
		if s.errTrans != nil {
			return nil, s.errTrans
		}
		if fail {
			results = append(results, &action.Result{Success: false, Error: s.message})
			continue
		}
		rollbackData, _ := json.Marshal(map[string]string{"undo": anAction.Type, "target": anAction.Target})
		results = append(results, &action.Result{
			Success:      true,
			Details:      map[string]interface{}{"applied": anAction.Type},
			RollbackData: rollbackData,
		})
	}
	return results, nil
}

// Calls returns recorded calls.
func (e *Executor) Calls() []Call {
	e.mux.Lock()
	defer e.mux.Unlock()
	return append([]Call(nil), e.calls...)
}

// Types returns recorded action types, optionally only compensating ones.
func (e *Executor) Types(compensating bool) []string {
	var ret []string
	for _, call := range e.Calls() {
		if call.Compensating == compensating {
			ret = append(ret, call.Type)
		}
	}
	return ret
}
