package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoPath_ReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPBind, cfg.HTTPBind)
	assert.Equal(t, DefaultApprovalDuration, cfg.ApprovalDuration)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "policy_path: /etc/sentinel/policy.json\nstrict_mode: false\nhttp_bind: \"0.0.0.0:9000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/sentinel/policy.json", cfg.PolicyPath)
	assert.False(t, cfg.StrictMode, "expected strict_mode false from file")
	assert.Equal(t, "0.0.0.0:9000", cfg.HTTPBind)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_bind: \"0.0.0.0:9000\"\n"), 0o644))

	t.Setenv("SENTINEL_HTTP_BIND", "127.0.0.1:1234")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", cfg.HTTPBind, "env should override file")
}

func TestLoad_ApprovalDurationFromEnvSeconds(t *testing.T) {
	t.Setenv("SENTINEL_APPROVAL_DURATION_SECONDS", "30")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.ApprovalDuration)
}

func TestLoad_MissingPath_FallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/no/such/file.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPBind, cfg.HTTPBind)
}

func TestLoad_AdminTokenFromEnv(t *testing.T) {
	t.Setenv("SENTINEL_HTTP_ADMIN_TOKEN", "s3cr3t")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.HTTPAdminToken)
}
