package memory

import (
	"context"

	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/criteria"
	"github.com/viant/remediator/service/dao/store"
)

// Service implements an in-memory execution storage. All operations are
// thread-safe and return copies of the stored executions.
type Service struct {
	*store.MemoryStore[string, execution.Execution]
}

// Compile-time check that Service implements the generic DAO interface.
var _ dao.Service[string, execution.Execution] = (*Service)(nil)

// Load retrieves a copy of the execution or dao.ErrNotFound.
func (s *Service) Load(ctx context.Context, id string) (*execution.Execution, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	return s.MemoryStore.Load(ctx, id)
}

// New constructor.
func New() *Service {
	return &Service{MemoryStore: store.NewMemoryStore[string, execution.Execution](
		func(e *execution.Execution) string { return e.ID },
		store.WithClone[string, execution.Execution]((*execution.Execution).Clone),
		store.WithFilter[string, execution.Execution](criteria.Match),
	)}
}
