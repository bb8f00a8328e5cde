package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/playbook"
)

// Schema creates the playbook table.
const Schema = `CREATE TABLE IF NOT EXISTS playbooks (
	id              TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	name            TEXT NOT NULL,
	document        JSONB NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (organization_id, id)
);`

// Service reads playbooks from PostgreSQL.
type Service struct {
	db *pgxpool.Pool
}

var _ playbook.Store = (*Service)(nil)

// New creates a store over db.
func New(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// EnsureSchema creates the table when missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// GetPlaybook returns the playbook or dao.ErrNotFound.
func (s *Service) GetPlaybook(ctx context.Context, id, organizationID string) (*model.Playbook, error) {
	var document []byte
	err := s.db.QueryRow(ctx, "SELECT document FROM playbooks WHERE organization_id = $1 AND id = $2", organizationID, id).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playbook %s: %w", id, err)
	}
	ret := &model.Playbook{}
	if err := json.Unmarshal(document, ret); err != nil {
		return nil, fmt.Errorf("failed to decode playbook %s: %w", id, err)
	}
	ret.ID = id
	ret.OrganizationID = organizationID
	return ret, nil
}

// Save upserts a playbook.
func (s *Service) Save(ctx context.Context, pb *model.Playbook) error {
	if pb == nil {
		return dao.ErrNilEntity
	}
	if pb.ID == "" || pb.OrganizationID == "" {
		return dao.ErrInvalidID
	}
	document, err := json.Marshal(pb)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO playbooks (id, organization_id, name, document) VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, id) DO UPDATE SET name = EXCLUDED.name, document = EXCLUDED.document, updated_at = now()`,
		pb.ID, pb.OrganizationID, pb.Name, document)
	return err
}
