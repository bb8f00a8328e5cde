package memory

import (
	"context"

	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/dao/playbook"
	"github.com/viant/remediator/service/dao/store"
)

// Service keeps playbooks in memory.
type Service struct {
	records *store.MemoryStore[string, model.Playbook]
}

var _ playbook.Store = (*Service)(nil)

// GetPlaybook returns a copy of the playbook or dao.ErrNotFound.
func (s *Service) GetPlaybook(ctx context.Context, id, organizationID string) (*model.Playbook, error) {
	return s.records.Load(ctx, playbook.Key(organizationID, id))
}

// Save stores a playbook.
func (s *Service) Save(ctx context.Context, pb *model.Playbook) error {
	return s.records.Save(ctx, pb)
}

// New creates a store seeded with playbooks.
func New(playbooks ...*model.Playbook) *Service {
	ret := &Service{records: store.NewMemoryStore[string, model.Playbook](
		func(pb *model.Playbook) string { return playbook.Key(pb.OrganizationID, pb.ID) },
		store.WithClone[string, model.Playbook](clone),
	)}
	for _, pb := range playbooks {
		_ = ret.records.Save(context.Background(), pb)
	}
	return ret
}

func clone(pb *model.Playbook) *model.Playbook {
	ret := *pb
	ret.Actions = make([]*model.PlaybookAction, len(pb.Actions))
	for i, action := range pb.Actions {
		if action == nil {
			continue
		}
		copied := *action
		ret.Actions[i] = &copied
	}
	return &ret
}
