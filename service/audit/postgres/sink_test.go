package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/remediator/internal/pgtest"
	"github.com/viant/remediator/service/audit"
)

func TestSink(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	sink := New(pool)
	require.NoError(t, sink.EnsureSchema(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, action := range []string{"workflow_started", "workflow_failed"} {
		require.NoError(t, sink.Log(ctx, &audit.Entry{
			Event:          "execution.started",
			EntityType:     audit.EntityType,
			EntityID:       "e1",
			Action:         action,
			OrganizationID: "acme",
			Severity:       audit.SeverityInfo,
			Metadata:       map[string]interface{}{"steps": 2},
			CreatedAt:      now,
		}))
	}
	entries, err := sink.Entries(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "workflow_failed", entries[1].Action)
	assert.Equal(t, float64(2), entries[0].Metadata["steps"])
	assert.True(t, now.Equal(entries[0].CreatedAt))
}
