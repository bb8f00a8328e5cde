// Package postgres stores audit entries in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viant/remediator/service/audit"
)

// Schema creates the audit table.
const Schema = `CREATE TABLE IF NOT EXISTS audit_log (
	id              BIGSERIAL PRIMARY KEY,
	event           TEXT NOT NULL,
	entity_type     TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	action          TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	actor_id        TEXT,
	severity        TEXT NOT NULL,
	metadata        JSONB,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_entity_idx ON audit_log (entity_id, created_at);`

// Sink appends entries to audit_log.
type Sink struct {
	db *pgxpool.Pool
}

var _ audit.Sink = (*Sink)(nil)

// New creates a sink over db.
func New(db *pgxpool.Pool) *Sink {
	return &Sink{db: db}
}

// EnsureSchema creates the table when missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// Log inserts entry.
func (s *Sink) Log(ctx context.Context, entry *audit.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO audit_log (event, entity_type, entity_id, action, organization_id, actor_id, severity, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Event, entry.EntityType, entry.EntityID, entry.Action, entry.OrganizationID,
		entry.ActorID, string(entry.Severity), metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry %s: %w", entry.Action, err)
	}
	return nil
}

// Entries returns entries of an execution in insertion order.
func (s *Sink) Entries(ctx context.Context, entityID string) ([]*audit.Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT event, entity_type, entity_id, action, organization_id, COALESCE(actor_id, ''), severity, metadata, created_at
		FROM audit_log WHERE entity_id = $1 ORDER BY id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()
	var ret []*audit.Entry
	for rows.Next() {
		entry := &audit.Entry{}
		var severity string
		var metadata []byte
		if err := rows.Scan(&entry.Event, &entry.EntityType, &entry.EntityID, &entry.Action, &entry.OrganizationID,
			&entry.ActorID, &severity, &metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Severity = audit.Severity(severity)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, err
			}
		}
		ret = append(ret, entry)
	}
	return ret, rows.Err()
}
