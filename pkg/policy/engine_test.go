package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsec/sentinel/pkg/secmodel"
)

func manifest(id string, radius secmodel.BlastRadius) *secmodel.ToolManifest {
	return &secmodel.ToolManifest{ToolID: id, BlastRadius: radius}
}

func TestEvaluate_ManifestAbsent_Deny(t *testing.T) {
	e := NewEngine(true)
	got := e.Evaluate(secmodel.ToolCall{ToolID: "ghost"}, nil, secmodel.GatePass)
	assert.Equal(t, secmodel.Deny, got.Outcome)
	assert.Equal(t, secmodel.Unknown, got.BlastRadius)
}

func TestEvaluate_Blocklist_PrecedesGrant(t *testing.T) {
	e := NewEngine(true)
	e.Grant("exec", "*")
	e.BlockTool("exec")

	got := e.Evaluate(secmodel.ToolCall{ToolID: "exec"}, manifest("exec", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Deny, got.Outcome, "blocklist precedes grants")
}

func TestEvaluate_Omega0_AlwaysAllowed(t *testing.T) {
	e := NewEngine(true)
	got := e.Evaluate(secmodel.ToolCall{ToolID: "read_file"}, manifest("read_file", secmodel.Omega0), secmodel.GateFailFpr)
	assert.Equal(t, secmodel.Allow, got.Outcome)
}

func TestEvaluate_Omega1_GatedByMonitorability(t *testing.T) {
	e := NewEngine(true)
	m := manifest("write_file", secmodel.Omega1)

	got := e.Evaluate(secmodel.ToolCall{ToolID: "write_file"}, m, secmodel.GatePass)
	assert.Equal(t, secmodel.Allow, got.Outcome, "gate pass")

	got = e.Evaluate(secmodel.ToolCall{ToolID: "write_file"}, m, secmodel.GateUnknown)
	assert.Equal(t, secmodel.Allow, got.Outcome, "gate unknown")

	got = e.Evaluate(secmodel.ToolCall{ToolID: "write_file"}, m, secmodel.GateFailCoverage)
	assert.Equal(t, secmodel.Deny, got.Outcome, "gate fail")
}

func TestEvaluate_Omega2_NoApprovalNoGrant_DefaultDeny(t *testing.T) {
	e := NewEngine(true)
	got := e.Evaluate(secmodel.ToolCall{ToolID: "exec"}, manifest("exec", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Deny, got.Outcome)
}

func TestEvaluate_Omega2_NoApprovalNoGrant_DefaultReview(t *testing.T) {
	e := NewEngine(false)
	got := e.Evaluate(secmodel.ToolCall{ToolID: "exec"}, manifest("exec", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Review, got.Outcome)
}

func TestEvaluate_Omega2_TimeBoundedApproval(t *testing.T) {
	e := NewEngine(true)
	e.GrantOmega2Approval("exec", time.Minute)

	got := e.Evaluate(secmodel.ToolCall{ToolID: "exec"}, manifest("exec", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Allow, got.Outcome)
}

func TestEvaluate_Omega2_ExpiredApprovalNeverAllows(t *testing.T) {
	e := NewEngine(true)
	e.GrantOmega2Approval("exec", -time.Minute) // already expired

	got := e.Evaluate(secmodel.ToolCall{ToolID: "exec"}, manifest("exec", secmodel.Omega2), secmodel.GatePass)
	assert.NotEqual(t, secmodel.Allow, got.Outcome, "expired approval must never allow")
}

func TestEvaluate_Omega2_GrantByAction(t *testing.T) {
	e := NewEngine(true)
	e.Grant("db", "read")

	allowed := e.Evaluate(secmodel.ToolCall{ToolID: "db", Action: "read"}, manifest("db", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Allow, allowed.Outcome, "granted action")

	denied := e.Evaluate(secmodel.ToolCall{ToolID: "db", Action: "drop"}, manifest("db", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Deny, denied.Outcome, "non-granted action")
}

func TestEvaluate_Unknown_AlwaysDenied(t *testing.T) {
	e := NewEngine(false)
	e.Grant("mystery", "*")
	e.GrantOmega2Approval("mystery", time.Hour)

	got := e.Evaluate(secmodel.ToolCall{ToolID: "mystery"}, manifest("mystery", secmodel.Unknown), secmodel.GatePass)
	assert.Equal(t, secmodel.Deny, got.Outcome, "regardless of grants/approvals")
}

func TestLoadDocument_DefaultsEmpty(t *testing.T) {
	e := NewEngine(true)
	require.NoError(t, e.LoadDocument([]byte(`{}`)))
	assert.Empty(t, e.NetworkAllowlist())
}

func TestLoadDocument_PopulatesGrantsBlocklistAllowlist(t *testing.T) {
	e := NewEngine(true)
	doc := `{
		"grants": {"deploy": ["*"]},
		"blocked_tools": ["rm_rf"],
		"allowed_network_domains": ["api.internal.example.com"]
	}`
	require.NoError(t, e.LoadDocument([]byte(doc)))

	got := e.Evaluate(secmodel.ToolCall{ToolID: "deploy"}, manifest("deploy", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Allow, got.Outcome, "deploy granted")

	blocked := e.Evaluate(secmodel.ToolCall{ToolID: "rm_rf"}, manifest("rm_rf", secmodel.Omega2), secmodel.GatePass)
	assert.Equal(t, secmodel.Deny, blocked.Outcome, "rm_rf blocked")

	assert.Equal(t, []string{"api.internal.example.com"}, e.NetworkAllowlist())
}

func TestUnblockTool_RemovesFromBlocklist(t *testing.T) {
	e := NewEngine(true)
	e.BlockTool("exec")
	e.UnblockTool("exec")

	got := e.Evaluate(secmodel.ToolCall{ToolID: "exec"}, manifest("exec", secmodel.Omega0), secmodel.GatePass)
	assert.Equal(t, secmodel.Allow, got.Outcome, "Allow after unblock (O0)")
}
