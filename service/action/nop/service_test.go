package nop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/action"
)

func TestService_ExecuteActions(t *testing.T) {
	srv := New()
	results, err := srv.ExecuteActions(context.Background(),
		[]*model.Action{{Type: "revoke", Target: "u1"}, {Type: "block", Target: "10.0.0.1"}},
		&action.Context{ExecutionID: "e1", DryRun: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.JSONEq(t, `{"type":"block","target":"10.0.0.1"}`, string(results[1].RollbackData))

	calls := srv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "revoke", calls[0].Action.Type)
	assert.True(t, calls[0].Context.DryRun)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = srv.ExecuteActions(ctx, []*model.Action{{Type: "x"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
