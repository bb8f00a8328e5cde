// Package playbook defines the playbook store port consumed by the compiler.
package playbook

import (
	"context"

	"github.com/viant/remediator/model"
)

// Store returns stored playbooks scoped by organization. Implementations
// return dao.ErrNotFound for unknown ids or foreign organizations.
type Store interface {
	GetPlaybook(ctx context.Context, id, organizationID string) (*model.Playbook, error)
}

// Key returns the storage key of a playbook.
func Key(organizationID, id string) string {
	return organizationID + "/" + id
}
