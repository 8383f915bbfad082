// Package config loads the runtime's operating configuration: where the
// policy document and audit log live, whether the monitorability gate is
// enforced strictly, and the HTTP admin surface's bind address.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values, exported for documentation and tests.
const (
	DefaultPolicyPath           = ""
	DefaultRiskPolicyPath       = ""
	DefaultAuditPath            = ""
	DefaultStrictMode           = true
	DefaultOmega2Deny           = true
	DefaultHTTPBind             = "127.0.0.1:8787"
	DefaultApprovalDuration     = 5 * time.Minute
	DefaultHTTPAdminEnabled     = false
)

// Config is the complete runtime configuration.
type Config struct {
	PolicyPath       string        `yaml:"policy_path"`
	RiskPolicyPath   string        `yaml:"risk_policy_path"`
	AuditPath        string        `yaml:"audit_path"`
	StrictMode       bool          `yaml:"strict_mode"`
	DefaultOmega2Deny bool         `yaml:"default_omega2_deny"`
	HTTPBind         string        `yaml:"http_bind"`
	HTTPAdminEnabled bool          `yaml:"http_admin_enabled"`
	// HTTPAdminToken, when non-empty, is the bearer token httpadmin.Server
	// requires on every request except /metrics (constant-time compared). Binding the admin
	// surface to a non-loopback address with this empty is a startup error —
	// see httpadmin.Server.ListenAndServe.
	HTTPAdminToken   string        `yaml:"http_admin_token"`
	ApprovalDuration time.Duration `yaml:"-"`
	ApprovalDurationSeconds int    `yaml:"approval_duration_seconds"`
}

// Defaults returns a Config populated with every Default* constant.
func Defaults() Config {
	return Config{
		PolicyPath:        DefaultPolicyPath,
		RiskPolicyPath:     DefaultRiskPolicyPath,
		AuditPath:          DefaultAuditPath,
		StrictMode:         DefaultStrictMode,
		DefaultOmega2Deny:  DefaultOmega2Deny,
		HTTPBind:           DefaultHTTPBind,
		HTTPAdminEnabled:   DefaultHTTPAdminEnabled,
		ApprovalDuration:   DefaultApprovalDuration,
	}
}

// Load reads configuration from path (if non-empty and present) and then
// applies SENTINEL_*-prefixed environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.ApprovalDurationSeconds > 0 {
		cfg.ApprovalDuration = time.Duration(cfg.ApprovalDurationSeconds) * time.Second
	} else if cfg.ApprovalDuration == 0 {
		cfg.ApprovalDuration = DefaultApprovalDuration
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_POLICY_PATH"); v != "" {
		cfg.PolicyPath = v
	}
	if v := os.Getenv("SENTINEL_RISK_POLICY_PATH"); v != "" {
		cfg.RiskPolicyPath = v
	}
	if v := os.Getenv("SENTINEL_AUDIT_PATH"); v != "" {
		cfg.AuditPath = v
	}
	if v := os.Getenv("SENTINEL_STRICT_MODE"); v != "" {
		cfg.StrictMode = parseBool(v, cfg.StrictMode)
	}
	if v := os.Getenv("SENTINEL_DEFAULT_OMEGA2_DENY"); v != "" {
		cfg.DefaultOmega2Deny = parseBool(v, cfg.DefaultOmega2Deny)
	}
	if v := os.Getenv("SENTINEL_HTTP_BIND"); v != "" {
		cfg.HTTPBind = v
	}
	if v := os.Getenv("SENTINEL_HTTP_ADMIN_ENABLED"); v != "" {
		cfg.HTTPAdminEnabled = parseBool(v, cfg.HTTPAdminEnabled)
	}
	if v := os.Getenv("SENTINEL_HTTP_ADMIN_TOKEN"); v != "" {
		cfg.HTTPAdminToken = v
	}
	if v := strings.TrimSpace(os.Getenv("SENTINEL_APPROVAL_DURATION_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ApprovalDurationSeconds = n
		}
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
