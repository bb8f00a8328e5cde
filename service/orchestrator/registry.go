package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/viant/remediator/model/execution"
)

// entry is an active execution. mux serialises every mutation of the
// execution; snapshot holds the last persisted copy for lock free reads.
type entry struct {
	mux       sync.Mutex
	execution *execution.Execution
	snapshot  atomic.Pointer[execution.Execution]
	cancelled atomic.Bool

	runMux    sync.Mutex
	runCancel context.CancelFunc
}

func (e *entry) setRunCancel(fn context.CancelFunc) {
	e.runMux.Lock()
	e.runCancel = fn
	e.runMux.Unlock()
}

// interrupt cancels the step currently running, if any.
func (e *entry) interrupt() {
	e.runMux.Lock()
	fn := e.runCancel
	e.runMux.Unlock()
	if fn != nil {
		fn()
	}
}

type registry struct {
	mux     sync.RWMutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: map[string]*entry{}}
}

func (r *registry) put(anExecution *execution.Execution) *entry {
	ret := &entry{execution: anExecution}
	ret.snapshot.Store(anExecution.Clone())
	r.mux.Lock()
	r.entries[anExecution.ID] = ret
	r.mux.Unlock()
	return ret
}

func (r *registry) get(id string) *entry {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.entries[id]
}

func (r *registry) remove(id string) {
	r.mux.Lock()
	delete(r.entries, id)
	r.mux.Unlock()
}

func (r *registry) all() []*entry {
	r.mux.RLock()
	defer r.mux.RUnlock()
	ret := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ret = append(ret, e)
	}
	return ret
}

func (r *registry) size() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.entries)
}
