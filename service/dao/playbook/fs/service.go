package fs

import (
	"bytes"
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/playbook"
)

// Service loads YAML playbooks laid out as <baseURL>/<organizationID>/<id>.yaml.
type Service struct {
	baseURL string
	fs      afs.Service
}

var _ playbook.Store = (*Service)(nil)

// GetPlaybook loads a playbook document or returns dao.ErrNotFound.
func (s *Service) GetPlaybook(ctx context.Context, id, organizationID string) (*model.Playbook, error) {
	if id == "" || organizationID == "" {
		return nil, dao.ErrInvalidID
	}
	location := s.location(organizationID, id)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check playbook %s: %w", location, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to download playbook %s: %w", location, err)
	}
	ret, err := playbook.DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	if ret.OrganizationID == "" {
		ret.OrganizationID = organizationID
	}
	if ret.ID != id || ret.OrganizationID != organizationID {
		return nil, dao.ErrNotFound
	}
	return ret, nil
}

// Save writes a playbook document.
func (s *Service) Save(ctx context.Context, pb *model.Playbook) error {
	if pb == nil {
		return dao.ErrNilEntity
	}
	if pb.ID == "" || pb.OrganizationID == "" {
		return dao.ErrInvalidID
	}
	data, err := playbook.EncodeYAML(pb)
	if err != nil {
		return err
	}
	return s.fs.Upload(ctx, s.location(pb.OrganizationID, pb.ID), file.DefaultFileOsMode, bytes.NewReader(data))
}

func (s *Service) location(organizationID, id string) string {
	return url.Join(s.baseURL, organizationID, id+".yaml")
}

// New creates a store rooted at baseURL.
func New(baseURL string, fs afs.Service) *Service {
	if fs == nil {
		fs = afs.New()
	}
	return &Service{baseURL: url.Normalize(baseURL, file.Scheme), fs: fs}
}
