package httpadmin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsec/sentinel/pkg/runtime"
	"github.com/fitsec/sentinel/pkg/secmodel"
)

func newTestServer() (*Server, *runtime.Runtime) {
	rt := runtime.New(true, true)
	rt.RegisterTool(secmodel.ToolManifest{ToolID: "read_file", BlastRadius: secmodel.Omega0}, func(action string, args map[string]any) (any, error) {
		return "ok", nil
	})
	rt.RegisterTool(secmodel.ToolManifest{ToolID: "exec", BlastRadius: secmodel.Omega2}, func(action string, args map[string]any) (any, error) {
		return "ok", nil
	})
	return New(rt, ""), rt
}

func newAuthedTestServer(token string) (*Server, *runtime.Runtime) {
	rt := runtime.New(true, true)
	rt.RegisterTool(secmodel.ToolManifest{ToolID: "exec", BlastRadius: secmodel.Omega2}, func(action string, args map[string]any) (any, error) {
		return "ok", nil
	})
	return New(rt, token), rt
}

func TestAuthMiddleware_RejectsWithoutToken(t *testing.T) {
	s, _ := newAuthedTestServer("secret-token")
	req := httptest.NewRequest(http.MethodPost, "/emergency/stop", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_RejectsWrongToken(t *testing.T) {
	s, _ := newAuthedTestServer("secret-token")
	req := httptest.NewRequest(http.MethodPost, "/emergency/stop", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_AcceptsCorrectToken(t *testing.T) {
	s, rt := newAuthedTestServer("secret-token")
	req := httptest.NewRequest(http.MethodPost, "/emergency/stop", strings.NewReader(`{"reason":"incident"}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rt.Emergency.IsActive())
}

func TestAuthMiddleware_MetricsExemptWhenAuthEnabled(t *testing.T) {
	s, _ := newAuthedTestServer("secret-token")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListenAndServe_RefusesNonLoopbackWithoutToken(t *testing.T) {
	s, _ := newTestServer()
	err := s.ListenAndServe("0.0.0.0:8787")
	require.Error(t, err)
}

func TestHandleStatus_ReturnsRuntimeSnapshot(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status runtime.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 2, status.RegisteredTools)
}

func TestHandleEmergencyStopAndClear(t *testing.T) {
	s, rt := newTestServer()

	body := strings.NewReader(`{"reason":"incident"}`)
	req := httptest.NewRequest(http.MethodPost, "/emergency/stop", body)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rt.Emergency.IsActive(), "expected emergency gate active after POST /emergency/stop")

	req = httptest.NewRequest(http.MethodPost, "/emergency/clear", nil)
	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	assert.False(t, rt.Emergency.IsActive(), "expected emergency gate cleared after POST /emergency/clear")
}

func TestHandleApprovalGrantAndRevoke(t *testing.T) {
	s, rt := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/approvals/exec/grant", strings.NewReader(`{"duration_seconds":60}`))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	decision := rt.Policy.Evaluate(secmodel.ToolCall{ToolID: "exec"}, &secmodel.ToolManifest{ToolID: "exec", BlastRadius: secmodel.Omega2}, secmodel.GatePass)
	assert.Equal(t, secmodel.Allow, decision.Outcome)

	req = httptest.NewRequest(http.MethodDelete, "/approvals/exec/", nil)
	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	decision = rt.Policy.Evaluate(secmodel.ToolCall{ToolID: "exec"}, &secmodel.ToolManifest{ToolID: "exec", BlastRadius: secmodel.Omega2}, secmodel.GatePass)
	assert.NotEqual(t, secmodel.Allow, decision.Outcome, "expected revoke to remove the approval")
}

func TestHandlePolicyBlockAndUnblock(t *testing.T) {
	s, rt := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/policy/block/exec", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	decision := rt.Policy.Evaluate(secmodel.ToolCall{ToolID: "exec"}, &secmodel.ToolManifest{ToolID: "exec", BlastRadius: secmodel.Omega0}, secmodel.GatePass)
	assert.Equal(t, secmodel.Deny, decision.Outcome, "blocked even at Omega0")

	req = httptest.NewRequest(http.MethodDelete, "/policy/block/exec", nil)
	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	decision = rt.Policy.Evaluate(secmodel.ToolCall{ToolID: "exec"}, &secmodel.ToolManifest{ToolID: "exec", BlastRadius: secmodel.Omega0}, secmodel.GatePass)
	assert.Equal(t, secmodel.Allow, decision.Outcome, "expected Allow after unblock")
}

func TestHandleAudit_FiltersByToolID(t *testing.T) {
	s, rt := newTestServer()
	rt.Execute(context.Background(), secmodel.ToolCall{ToolID: "read_file", Action: "read"}, false)

	req := httptest.NewRequest(http.MethodGet, "/audit?tool_id=read_file", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []secmodel.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}
