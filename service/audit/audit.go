// Package audit records an append only trail of execution activity. Entries
// are derived from domain events and written to a Sink.
package audit

import (
	"context"
	"sync"
	"time"
)

// EntityType is the audited entity of every engine entry.
const EntityType = "workflow_execution"

// Severity grades an entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is a single audit record.
type Entry struct {
	Event          string                 `json:"event"`
	EntityType     string                 `json:"entityType"`
	EntityID       string                 `json:"entityId"`
	Action         string                 `json:"action"`
	OrganizationID string                 `json:"organizationId"`
	ActorID        string                 `json:"actorId,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Severity       Severity               `json:"severity"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// Sink persists entries.
type Sink interface {
	Log(ctx context.Context, entry *Entry) error
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mux     sync.Mutex
	entries []*Entry
}

// Log appends entry.
func (m *MemorySink) Log(_ context.Context, entry *Entry) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns recorded entries, optionally restricted to one entity.
func (m *MemorySink) Entries(entityID string) []*Entry {
	m.mux.Lock()
	defer m.mux.Unlock()
	var ret []*Entry
	for _, entry := range m.entries {
		if entityID == "" || entry.EntityID == entityID {
			ret = append(ret, entry)
		}
	}
	return ret
}
