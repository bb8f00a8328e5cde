package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/criteria"
	"go.uber.org/zap"
)

// Service implements an afs backed execution storage; every execution is
// kept as a JSON document named after its id. Any afs scheme works
// (file://, mem://, s3://, gs://).
type Service struct {
	basePath string
	fs       afs.Service
	logger   *zap.Logger
	mu       sync.RWMutex
}

// Ensure Service implements dao.Service
var _ dao.Service[string, execution.Execution] = (*Service)(nil)

// Option customises the service
type Option func(s *Service)

// WithLogger sets the logger used for unreadable documents.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithFS sets the afs service.
func WithFS(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// Save persists an execution
func (s *Service) Save(ctx context.Context, anExecution *execution.Execution) error {
	if anExecution == nil {
		return dao.ErrNilEntity
	}
	if anExecution.ID == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(anExecution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.executionPath(anExecution.ID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save execution to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves an execution or dao.ErrNotFound
func (s *Service) Load(ctx context.Context, id string) (*execution.Execution, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.executionPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if execution exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read execution file: %w", err)
	}
	ret := &execution.Execution{}
	if err := json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}
	return ret, nil
}

// Delete removes an execution document
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.executionPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if execution exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete execution file: %w", err)
	}
	return nil
}

// List returns executions matching parameters
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}
	var ret []*execution.Execution
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.Warn("skipping unreadable execution", zap.String("url", object.URL()), zap.Error(err))
			continue
		}
		anExecution := &execution.Execution{}
		if err := json.Unmarshal(data, anExecution); err != nil {
			s.logger.Warn("skipping malformed execution", zap.String("url", object.URL()), zap.Error(err))
			continue
		}
		if criteria.Match(anExecution, parameters) {
			ret = append(ret, anExecution)
		}
	}
	return ret, nil
}

func (s *Service) executionPath(id string) string {
	return url.Join(s.basePath, id+".json")
}

// New creates a new afs execution storage rooted at basePath
func New(ctx context.Context, basePath string, options ...Option) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	ret := &Service{logger: zap.NewNop()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	ret.basePath = url.Normalize(basePath, file.Scheme)
	exists, _ := ret.fs.Exists(ctx, ret.basePath)
	if !exists {
		if err := ret.fs.Create(ctx, ret.basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return ret, nil
}
