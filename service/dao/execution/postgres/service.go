package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/dao"
)

// Schema creates the execution table.
const Schema = `CREATE TABLE IF NOT EXISTS workflow_executions (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	workflow_id     TEXT NOT NULL,
	status          TEXT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ,
	payload         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS workflow_executions_org_idx ON workflow_executions (organization_id, started_at DESC);`

// Service is a PostgreSQL execution store. Indexed columns mirror the
// filterable fields; the full execution is kept as JSONB.
type Service struct {
	db *pgxpool.Pool
}

var _ dao.Service[string, execution.Execution] = (*Service)(nil)

// New creates a store over db.
func New(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// EnsureSchema creates the table when missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// Save upserts an execution.
func (s *Service) Save(ctx context.Context, anExecution *execution.Execution) error {
	if anExecution == nil {
		return dao.ErrNilEntity
	}
	if anExecution.ID == "" {
		return dao.ErrInvalidID
	}
	payload, err := json.Marshal(anExecution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO workflow_executions (id, organization_id, workflow_id, status, started_at, completed_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at, payload = EXCLUDED.payload`,
		anExecution.ID, anExecution.OrganizationID, anExecution.WorkflowID, string(anExecution.Status),
		anExecution.StartedAt, anExecution.CompletedAt, payload)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", anExecution.ID, err)
	}
	return nil
}

// Load retrieves an execution or dao.ErrNotFound.
func (s *Service) Load(ctx context.Context, id string) (*execution.Execution, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	var payload []byte
	err := s.db.QueryRow(ctx, "SELECT payload FROM workflow_executions WHERE id = $1", id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}
	return decode(payload)
}

// Delete removes an execution.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	tag, err := s.db.Exec(ctx, "DELETE FROM workflow_executions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return dao.ErrNotFound
	}
	return nil
}

// List returns executions matching organization, status and workflow filters,
// newest first.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.Execution, error) {
	query, args := listQuery(parameters)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var ret []*execution.Execution
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		anExecution, err := decode(payload)
		if err != nil {
			return nil, err
		}
		ret = append(ret, anExecution)
	}
	return ret, rows.Err()
}

var columns = map[string]string{
	dao.ParamOrganizationID: "organization_id",
	dao.ParamStatus:         "status",
	dao.ParamWorkflowID:     "workflow_id",
}

func listQuery(parameters []*dao.Parameter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		column, ok := columns[parameter.Name]
		if !ok {
			continue
		}
		values := parameter.Values()
		if len(values) == 0 {
			continue
		}
		args = append(args, values)
		conditions = append(conditions, column+" = ANY($"+strconv.Itoa(len(args))+")")
	}
	query := "SELECT payload FROM workflow_executions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query + " ORDER BY started_at DESC", args
}

func decode(payload []byte) (*execution.Execution, error) {
	ret := &execution.Execution{}
	if err := json.Unmarshal(payload, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return ret, nil
}
