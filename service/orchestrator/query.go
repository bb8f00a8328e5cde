package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/criteria"
)

const (
	// DefaultPageSize applies when a query sets no limit.
	DefaultPageSize = 20
	// MaxPageSize caps the query limit.
	MaxPageSize = 100
)

// Query selects executions of an organization.
type Query struct {
	OrganizationID string           `json:"organizationId"`
	Page           int              `json:"page"`
	Limit          int              `json:"limit"`
	Status         execution.Status `json:"status,omitempty"`
	WorkflowID     string           `json:"workflowId,omitempty"`
}

// Page is a page of executions, newest first.
type Page struct {
	Items []*execution.Execution `json:"items"`
	Total int                    `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

// Status returns the execution as seen by organizationID, or nil when it
// does not exist in that organization.
func (s *Service) Status(ctx context.Context, executionID, organizationID string) (*execution.Execution, error) {
	ret, err := s.snapshot(ctx, executionID)
	if err != nil {
		if errors.Is(err, ErrExecutionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if ret.OrganizationID != organizationID {
		return nil, nil
	}
	return ret, nil
}

// snapshot returns a copy of the latest known state of an execution.
func (s *Service) snapshot(ctx context.Context, executionID string) (*execution.Execution, error) {
	if e := s.active.get(executionID); e != nil {
		if ret := e.snapshot.Load(); ret != nil {
			return ret.Clone(), nil
		}
	}
	ret, err := s.records.Load(ctx, executionID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) || errors.Is(err, dao.ErrInvalidID) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
		}
		return nil, err
	}
	return ret, nil
}

// List returns active and terminal executions matching query.
func (s *Service) List(ctx context.Context, query *Query) (*Page, error) {
	if query == nil || query.OrganizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	parameters := []*dao.Parameter{dao.NewParameter(dao.ParamOrganizationID, query.OrganizationID)}
	if query.Status != "" {
		parameters = append(parameters, dao.NewParameter(dao.ParamStatus, string(query.Status)))
	}
	if query.WorkflowID != "" {
		parameters = append(parameters, dao.NewParameter(dao.ParamWorkflowID, query.WorkflowID))
	}
	records, err := s.records.List(ctx, parameters...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	byID := map[string]*execution.Execution{}
	for _, record := range records {
		byID[record.ID] = record
	}
	for _, e := range s.active.all() {
		snapshot := e.snapshot.Load()
		if snapshot == nil || !criteria.Match(snapshot, parameters) {
			continue
		}
		if _, ok := byID[snapshot.ID]; !ok {
			byID[snapshot.ID] = snapshot.Clone()
		}
	}
	items := make([]*execution.Execution, 0, len(byID))
	for _, item := range byID {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].StartedAt.After(items[j].StartedAt)
	})

	page, limit := query.Page, query.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	ret := &Page{Total: len(items), Page: page, Limit: limit, Items: []*execution.Execution{}}
	if page-1 > len(items)/limit {
		return ret, nil
	}
	from := (page - 1) * limit
	if from < len(items) {
		to := from + limit
		if to > len(items) {
			to = len(items)
		}
		ret.Items = items[from:to]
	}
	return ret, nil
}
