// Package secmodel holds the core data types shared by every component of
// the tool-call security runtime: the blast-radius taxonomy, tool manifests
// and calls, policy decisions, gate metrics/status, and the audit record.
//
// These types are plain values with no behavior beyond (de)serialization
// helpers. Components that reason about them (registry, policy, gate,
// emptiness, runtime) live in sibling packages.
package secmodel

import (
	"encoding/json"
	"time"
)

// BlastRadius classifies a tool action's reversibility and scope.
type BlastRadius int

const (
	Omega0 BlastRadius = iota // safe/reversible: pure reads, local compute
	Omega1                    // medium risk: reversible writes, outbound messages
	Omega2                    // high risk: shell exec, spawn, privileged/irreversible
	Unknown                   // unclassified — treated as Omega2 by policy, never privileged
)

// String renders the symbolic name used in the audit and status JSON.
func (b BlastRadius) String() string {
	switch b {
	case Omega0:
		return "OMEGA_0"
	case Omega1:
		return "OMEGA_1"
	case Omega2:
		return "OMEGA_2"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the blast radius by its symbolic name.
func (b BlastRadius) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON parses a blast radius from its symbolic name.
func (b *BlastRadius) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = ParseBlastRadius(s)
	return nil
}

// ParseBlastRadius converts a symbolic name back to a BlastRadius, defaulting
// to Unknown for anything unrecognized (fail closed, never silently Omega0).
func ParseBlastRadius(s string) BlastRadius {
	switch s {
	case "OMEGA_0":
		return Omega0
	case "OMEGA_1":
		return Omega1
	case "OMEGA_2":
		return Omega2
	default:
		return Unknown
	}
}

// Decision is a policy evaluation outcome.
type Decision int

const (
	Allow Decision = iota
	Deny
	Review
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case Deny:
		return "DENY"
	case Review:
		return "REVIEW"
	default:
		return "UNKNOWN"
	}
}

func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// GateStatus is the outcome of a monitorability gate evaluation.
type GateStatus int

const (
	GatePass GateStatus = iota
	GateFailFpr
	GateFailCoverage
	GateFailCalibration
	GateFailLeadTime
	GateUnknown
)

func (g GateStatus) String() string {
	switch g {
	case GatePass:
		return "PASS"
	case GateFailFpr:
		return "FAIL_FPR"
	case GateFailCoverage:
		return "FAIL_COVERAGE"
	case GateFailCalibration:
		return "FAIL_CALIBRATION"
	case GateFailLeadTime:
		return "FAIL_LEAD_TIME"
	default:
		return "UNKNOWN"
	}
}

func (g GateStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

// Passing reports whether this status permits an Omega1/Omega2 call to
// proceed to policy evaluation (spec: Pass or Unknown both pass through).
func (g GateStatus) Passing() bool {
	return g == GatePass || g == GateUnknown
}

// EmptinessState is the two-state safety-mode machine.
type EmptinessState int

const (
	StateNormal EmptinessState = iota
	StateEmptiness
)

func (s EmptinessState) String() string {
	if s == StateEmptiness {
		return "EMPTINESS"
	}
	return "NORMAL"
}

func (s EmptinessState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses an emptiness state from its symbolic name. Anything
// other than "NORMAL" parses as StateEmptiness (fail closed).
func (s *EmptinessState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*s = StateEmptiness
	if name == "NORMAL" {
		*s = StateNormal
	}
	return nil
}

// ToolManifest declares a tool's capabilities. Immutable once registered;
// audit entries keep their own copy by value so later manifest replacement
// or removal never rewrites history.
type ToolManifest struct {
	ToolID              string      `json:"tool_id"`
	BlastRadius         BlastRadius `json:"blast_radius"`
	Description         string      `json:"description"`
	Capabilities        []string    `json:"capabilities,omitempty"`
	AllowedNetworkDomains []string  `json:"allowed_network_domains,omitempty"`
	AllowedFSPaths      []string    `json:"allowed_fs_paths,omitempty"`
	RequiresApproval    bool        `json:"requires_approval"`
	ContentHash         string      `json:"content_hash,omitempty"`
}

// ToolCall is a proposed invocation, owned by whoever produced it.
type ToolCall struct {
	ToolID    string         `json:"tool_id"`
	Action    string         `json:"action"`
	Args      map[string]any `json:"args"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// GateMetrics are the operational-usability observations fed to the
// monitorability gate. Every field except the targets/thresholds is
// optional; absence means "no evidence" rather than "zero".
type GateMetrics struct {
	FalsePositiveRate   *float64 `json:"false_positive_rate,omitempty"`
	FPRTarget           float64  `json:"fpr_target"`
	CoverageAtTargetFPR *float64 `json:"coverage_at_target_fpr,omitempty"`
	CoverageTarget      float64  `json:"coverage_target"`
	CalibrationScore    *float64 `json:"calibration_score,omitempty"`
	CalibrationThreshold float64 `json:"calibration_threshold"`
	LeadTimeMean        *float64 `json:"lead_time_mean,omitempty"`
	LeadTimeStd         *float64 `json:"lead_time_std,omitempty"`
	LeadTimeCVMax       float64  `json:"lead_time_cv_max"`
}

// DefaultGateMetrics returns the targets/thresholds spec.md's gate examples
// use when no metrics have been observed at all.
func DefaultGateMetrics() GateMetrics {
	return GateMetrics{
		FPRTarget:            0.05,
		CoverageTarget:       0.80,
		CalibrationThreshold: 0.70,
		LeadTimeCVMax:        0.50,
	}
}

// PolicyDecision is the immutable result of one policy evaluation.
type PolicyDecision struct {
	Outcome     Decision     `json:"decision"`
	BlastRadius BlastRadius  `json:"omega_level"`
	GateStatus  GateStatus   `json:"gate_status"`
	Rationale   string       `json:"rationale"`
	Metrics     *GateMetrics `json:"metrics_snapshot,omitempty"`
	// RiskScore/RiskReasons are additive diagnostic context from the
	// optional risk-scoring extension (SPEC_FULL §4.3.1). They never
	// change Outcome.
	RiskScore   int      `json:"risk_score,omitempty"`
	RiskReasons []string `json:"risk_reasons,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AuditEntry is one append-only record of a mediation decision.
type AuditEntry struct {
	EntryID        string          `json:"entry_id"`
	ToolCall       ToolCall        `json:"tool_call"`
	Manifest       *ToolManifest   `json:"manifest"`
	PolicyDecision PolicyDecision  `json:"policy_decision"`
	Executed       bool            `json:"executed"`
	Result         any             `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ReviewPacket summarizes what was blocked during an emptiness window, for
// out-of-band human approval. ProposedPlan/DryRunDiffs/ContextSummary remain
// producer-less extension points per spec.md §9's open question.
type ReviewPacket struct {
	PacketID        string         `json:"packet_id"`
	Timestamp       time.Time      `json:"timestamp"`
	BlockedCalls    []ToolCall     `json:"blocked_calls"`
	ProposedPlan    *string        `json:"proposed_plan,omitempty"`
	DryRunDiffs     []map[string]any `json:"dry_run_diffs,omitempty"`
	ContextSummary  *string        `json:"context_summary,omitempty"`
	Recommendation  *string        `json:"recommendation,omitempty"`
}
