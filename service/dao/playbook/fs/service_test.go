package fs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/dao"
)

const document = `id: leaked-key
name: Leaked access key
timeoutSeconds: 900
rollbackOnFailure: true
actions:
  - id: disable-key
    type: disable_access_key
    target: AKIA123
    provider: aws
    blastRadius: critical
    requiresApproval: true
    requiredApprovers: 2
    compensation:
      type: enable_access_key
      target: AKIA123
  - id: page
    kind: notification
    channels: [log]
    template: key.disabled
`

func TestService_GetPlaybook(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	baseURL := "mem://localhost/remediator/test/playbooks"
	require.NoError(t, fs.Upload(ctx, baseURL+"/org-1/leaked-key.yaml", file.DefaultFileOsMode, bytes.NewReader([]byte(document))))
	srv := New(baseURL, fs)

	pb, err := srv.GetPlaybook(ctx, "leaked-key", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", pb.OrganizationID)
	assert.Equal(t, 900, pb.TimeoutSeconds)
	require.Len(t, pb.Actions, 2)
	assert.True(t, pb.Actions[0].RequiresApproval)
	assert.Equal(t, "enable_access_key", pb.Actions[0].Compensation.Type)
	assert.Equal(t, model.KindNotification, pb.Actions[1].Kind)

	_, err = srv.GetPlaybook(ctx, "leaked-key", "org-2")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	pb.ID = "copy"
	require.NoError(t, srv.Save(ctx, pb))
	copied, err := srv.GetPlaybook(ctx, "copy", "org-1")
	require.NoError(t, err)
	assert.Equal(t, pb.Name, copied.Name)
}
