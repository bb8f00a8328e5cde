package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/remediator/internal/actiontest"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/compiler"
	"github.com/viant/remediator/service/dao/playbook/memory"
	"github.com/viant/remediator/service/executor"
	"github.com/viant/remediator/service/metrics"
	"github.com/viant/remediator/service/orchestrator"
	"github.com/viant/remediator/service/rollback"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T) *httptest.Server {
	logger := zaptest.NewLogger(t)
	playbooks := memory.New(&model.Playbook{
		ID:             "contain",
		OrganizationID: "acme",
		Name:           "Contain identity",
		Actions: []*model.PlaybookAction{
			{ID: "suspend", Type: "suspend_user", Target: "u-1", RequiresApproval: true},
		},
	})
	actions := actiontest.New()
	gate := approval.New(approval.WithLogger(logger))
	engine := orchestrator.New(
		compiler.New(playbooks),
		executor.New(actions, executor.WithGate(gate)),
		gate,
		rollback.New(actions),
		orchestrator.WithLogger(logger))

	registry := prometheus.NewRegistry()
	require.NoError(t, metrics.New(engine.Active).Register(registry))
	srv := NewServer(engine, WithLogger(logger), WithMetrics(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	ret := httptest.NewServer(srv.Echo())
	t.Cleanup(ret.Close)
	return ret
}

func call(t *testing.T, server *httptest.Server, method, path, body string, target interface{}) int {
	request, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	if target != nil && response.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(response.Body).Decode(target))
	}
	return response.StatusCode
}

func TestServer_ExecutionLifecycle(t *testing.T) {
	server := newServer(t)

	started := &execution.Execution{}
	status := call(t, server, http.MethodPost, "/api/v1/orgs/acme/executions", `{"workflowId":"contain","triggeredBy":"alice"}`, started)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, execution.StatusAwaitingApproval, started.Status)
	require.Len(t, started.StepResults, 1)
	handle := started.StepResults[0].ApprovalHandle
	require.NotEmpty(t, handle)

	assert.Equal(t, http.StatusOK, call(t, server, http.MethodGet, "/api/v1/orgs/acme/executions/"+started.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, call(t, server, http.MethodGet, "/api/v1/orgs/globex/executions/"+started.ID, "", nil))

	outcome := &approval.Outcome{}
	status = call(t, server, http.MethodPost, "/api/v1/approvals/"+handle, `{"approverId":"bob","approved":true}`, outcome)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, outcome.Resumed)
	assert.Equal(t, http.StatusNotFound, call(t, server, http.MethodPost, "/api/v1/approvals/"+handle, `{"approverId":"carol","approved":true}`, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, server, http.MethodPost, "/api/v1/approvals/"+handle, `{"approved":true}`, nil))

	finished := &execution.Execution{}
	require.Equal(t, http.StatusOK, call(t, server, http.MethodGet, "/api/v1/orgs/acme/executions/"+started.ID, "", finished))
	assert.Equal(t, execution.StatusCompleted, finished.Status)

	assert.Equal(t, http.StatusConflict, call(t, server, http.MethodPost, "/api/v1/orgs/acme/executions/"+started.ID+"/cancel", `{"actorId":"bob"}`, nil))
	assert.Equal(t, http.StatusNotFound, call(t, server, http.MethodPost, "/api/v1/orgs/acme/executions/missing/cancel", `{}`, nil))

	page := &orchestrator.Page{}
	require.Equal(t, http.StatusOK, call(t, server, http.MethodGet, "/api/v1/orgs/acme/executions?status=completed&limit=5", "", page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, http.StatusBadRequest, call(t, server, http.MethodGet, "/api/v1/orgs/acme/executions?page=x", "", nil))
}

func TestServer_Errors(t *testing.T) {
	server := newServer(t)
	testCases := []struct {
		name   string
		method string
		path   string
		body   string
		expect int
	}{
		{name: "unknown workflow", method: http.MethodPost, path: "/api/v1/orgs/acme/executions", body: `{"workflowId":"missing"}`, expect: http.StatusNotFound},
		{name: "other organization playbook", method: http.MethodPost, path: "/api/v1/orgs/globex/executions", body: `{"workflowId":"contain"}`, expect: http.StatusNotFound},
		{name: "missing workflow id", method: http.MethodPost, path: "/api/v1/orgs/acme/executions", body: `{}`, expect: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/api/v1/orgs/acme/executions", body: `{`, expect: http.StatusBadRequest},
		{name: "unknown execution", method: http.MethodGet, path: "/api/v1/orgs/acme/executions/missing", expect: http.StatusNotFound},
		{name: "unknown handle", method: http.MethodPost, path: "/api/v1/approvals/nope", body: `{"approverId":"bob","approved":true}`, expect: http.StatusNotFound},
		{name: "metrics", method: http.MethodGet, path: "/metrics", expect: http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, call(t, server, tc.method, tc.path, tc.body, nil))
		})
	}
}

func TestServer_CancelAwaiting(t *testing.T) {
	server := newServer(t)
	started := &execution.Execution{}
	require.Equal(t, http.StatusAccepted, call(t, server, http.MethodPost, "/api/v1/orgs/acme/executions", `{"workflowId":"contain"}`, started))

	assert.Equal(t, http.StatusNotFound, call(t, server, http.MethodPost, "/api/v1/orgs/globex/executions/"+started.ID+"/cancel", `{}`, nil))
	cancelled := &execution.Execution{}
	require.Equal(t, http.StatusOK, call(t, server, http.MethodPost, "/api/v1/orgs/acme/executions/"+started.ID+"/cancel", `{"actorId":"bob","reason":"false positive"}`, cancelled))
	assert.Equal(t, execution.StatusCancelled, cancelled.Status)
	assert.Equal(t, "false positive", cancelled.CancelReason)
}
