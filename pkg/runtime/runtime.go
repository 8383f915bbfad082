// Package runtime implements the security-layer orchestrator: the single
// place that sequences lookup, emptiness, emergency, monitorability gate,
// policy evaluation, optional dry-run, execution, and audit logging for
// every tool call. Exactly one audit entry is written per call.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fitsec/sentinel/pkg/audit"
	"github.com/fitsec/sentinel/pkg/emptiness"
	"github.com/fitsec/sentinel/pkg/gate"
	"github.com/fitsec/sentinel/pkg/logging"
	"github.com/fitsec/sentinel/pkg/policy"
	"github.com/fitsec/sentinel/pkg/registry"
	"github.com/fitsec/sentinel/pkg/secmodel"
)

// Runtime is the FIT-Sec runtime orchestrator. StrictMode controls whether
// a failing monitorability gate denies Omega1/Omega2 calls outright (true)
// or carries the failing status forward into policy evaluation (false),
// where rule 4 still denies Omega1 calls and Omega2 calls are decided by
// approvals and grants alone.
//
// mu serializes evaluate's five decision steps (lookup, emptiness,
// emergency, gate, policy) into one critical section, and is also held
// across every external mutation of that same state (EnterEmptiness,
// ExitEmptiness, EmergencyStop, EmergencyClear, approval grants/revokes,
// blocklist edits) so a concurrent caller's evaluate always observes a
// consistent snapshot rather than a state change landing mid-evaluation.
// It is released before the executor itself runs, so a slow tool call
// never blocks unrelated evaluations.
type Runtime struct {
	StrictMode bool

	Registry   *registry.Registry
	Policy     *policy.Engine
	RiskScorer *policy.RiskScorer
	Gate       *gate.Gate
	Emergency  *gate.EmergencyGate
	Emptiness  *emptiness.Controller
	Audit      *audit.Logger

	// Logging is the optional structured event logger for operational
	// events (decisions, mode transitions, gate updates) distinct from
	// Audit's append-only security record. Nil means no event logging —
	// never a correctness dependency, only observability.
	Logging *logging.Logger

	mu sync.Mutex
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithAuditLogger overrides the default in-memory audit logger, e.g. with
// one backed by a durable JSONL sink via audit.NewWithFile.
func WithAuditLogger(l *audit.Logger) Option {
	return func(r *Runtime) { r.Audit = l }
}

// WithRiskScorer attaches the optional advisory risk-scoring extension.
func WithRiskScorer(s *policy.RiskScorer) Option {
	return func(r *Runtime) { r.RiskScorer = s }
}

// WithLogger attaches the structured operational event logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runtime) { r.Logging = l }
}

// logEvent writes a best-effort operational event. It is a no-op when no
// Logging is attached, and its own write errors are swallowed — event
// logging is observability, not the fail-closed guarantee Audit provides.
func (r *Runtime) logEvent(level logging.Level, category logging.Category, eventType, toolID, message string) {
	if r.Logging == nil {
		return
	}
	_ = r.Logging.Log(logging.Event{
		Level:     level,
		Category:  category,
		EventType: eventType,
		ToolID:    toolID,
		Message:   message,
	})
}

// New constructs a Runtime with fresh components. defaultOmega2Deny is
// passed straight to policy.NewEngine (see its doc comment).
func New(strictMode, defaultOmega2Deny bool, opts ...Option) *Runtime {
	r := &Runtime{
		StrictMode: strictMode,
		Registry:   registry.New(),
		Policy:     policy.NewEngine(defaultOmega2Deny),
		Gate:       gate.New(),
		Emergency:  gate.NewEmergencyGate(),
		Emptiness:  emptiness.NewController(),
		Audit:      audit.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTool declares a tool's manifest and, optionally, its executor.
func (r *Runtime) RegisterTool(manifest secmodel.ToolManifest, executor registry.Executor) {
	r.Registry.Register(manifest, executor)
}

// logAudit writes one audit entry and reports a non-nil error when the
// durable sink rejected the write. A sink failure is a system fault, not
// a silent drop: it overrides whatever decision/result this call would
// otherwise have returned, mirroring the original implementation where an
// audit write failure propagates as the exception seen by the caller.
func (r *Runtime) logAudit(call secmodel.ToolCall, manifest *secmodel.ToolManifest, decision secmodel.PolicyDecision, executed bool, result any, execErr error) error {
	_, sinkErr := r.Audit.Log(call, manifest, decision, executed, result, execErr)
	return sinkErr
}

// Execute runs a tool call through the full security layer. dryRun, when
// true, evaluates every gate but stops short of calling the executor.
//
// Returns the executor's result on success, or one of
// *secmodel.ToolNotRegisteredError, *secmodel.EmptinessActiveError,
// *secmodel.GateFailedError, *secmodel.PolicyDeniedError,
// *secmodel.ExecutorMissingError, *secmodel.ExecutorFaultError,
// *secmodel.AuditSinkError, or ctx.Err() when ctx is already done at the
// point the executor would be invoked.
func (r *Runtime) Execute(ctx context.Context, call secmodel.ToolCall, dryRun bool) (any, error) {
	manifest, decision, err := r.evaluate(call)
	if err != nil {
		return nil, err
	}

	if dryRun {
		result := map[string]any{"dry_run": true, "would_execute": true}
		if auditErr := r.logAudit(call, manifest, decision, false, result, nil); auditErr != nil {
			return nil, auditErr
		}
		return result, nil
	}

	executor, ok := r.Registry.GetExecutor(call.ToolID)
	if !ok {
		if auditErr := r.logAudit(call, manifest, decision, false, nil, fmt.Errorf("NoExecutor")); auditErr != nil {
			return nil, auditErr
		}
		return nil, secmodel.NewExecutorMissingError(call.ToolID)
	}

	select {
	case <-ctx.Done():
		if auditErr := r.logAudit(call, manifest, decision, true, nil, fmt.Errorf("cancelled")); auditErr != nil {
			return nil, auditErr
		}
		return nil, ctx.Err()
	default:
	}

	result, execErr := executor(call.Action, call.Args)
	if execErr != nil {
		if auditErr := r.logAudit(call, manifest, decision, true, nil, execErr); auditErr != nil {
			return nil, auditErr
		}
		return nil, secmodel.NewExecutorFaultError(call.ToolID, execErr)
	}

	if auditErr := r.logAudit(call, manifest, decision, true, result, nil); auditErr != nil {
		return nil, auditErr
	}
	return result, nil
}

// evaluate runs steps 1-5 (lookup, emptiness, emergency, gate, policy) as
// one atomic section guarded by r.mu, writing the terminal audit entry
// itself for every non-Allow outcome so Execute's caller never needs to
// special-case the blocked path.
func (r *Runtime) evaluate(call secmodel.ToolCall) (*secmodel.ToolManifest, secmodel.PolicyDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest, ok := r.Registry.GetManifest(call.ToolID)
	if !ok {
		decision := secmodel.PolicyDecision{
			Outcome:     secmodel.Deny,
			BlastRadius: secmodel.Unknown,
			GateStatus:  secmodel.GateUnknown,
			Rationale:   "Tool not registered",
		}
		if auditErr := r.logAudit(call, nil, decision, false, nil, fmt.Errorf("ToolNotRegisteredError")); auditErr != nil {
			return nil, decision, auditErr
		}
		r.logEvent(logging.LevelWarn, logging.CategorySecurity, "tool_not_registered", call.ToolID, "tool not registered")
		return nil, decision, secmodel.NewToolNotRegisteredError(call.ToolID)
	}

	radius := manifest.BlastRadius

	// Step: Emptiness Window.
	if !r.Emptiness.CheckAllowed(radius) {
		r.Emptiness.RecordBlockedCall(call)
		decision := secmodel.PolicyDecision{
			Outcome:     secmodel.Deny,
			BlastRadius: radius,
			GateStatus:  secmodel.GateUnknown,
			Rationale:   "Blocked by Emptiness Window",
		}
		if auditErr := r.logAudit(call, &manifest, decision, false, nil, fmt.Errorf("EmptinessActiveError")); auditErr != nil {
			return &manifest, decision, auditErr
		}
		r.logEvent(logging.LevelInfo, logging.CategoryEmptiness, "call_blocked", call.ToolID, "blocked by emptiness window")
		return &manifest, decision, secmodel.NewEmptinessActiveError(call.ToolID, radius)
	}

	// Step: Emergency Gate (Omega0 always exempt).
	if r.Emergency.IsActive() && radius != secmodel.Omega0 {
		decision := secmodel.PolicyDecision{
			Outcome:     secmodel.Deny,
			BlastRadius: radius,
			GateStatus:  secmodel.GateUnknown,
			Rationale:   fmt.Sprintf("Emergency gate active: %s", r.Emergency.Reason()),
		}
		if auditErr := r.logAudit(call, &manifest, decision, false, nil, fmt.Errorf("EmergencyGateActive")); auditErr != nil {
			return &manifest, decision, auditErr
		}
		r.logEvent(logging.LevelWarn, logging.CategoryGate, "call_blocked", call.ToolID, "blocked by emergency gate")
		return &manifest, decision, secmodel.NewGateFailedError("emergency gate is active")
	}

	// Step: Monitorability Gate (Omega1/Omega2 only).
	gateStatus := secmodel.GatePass
	if radius == secmodel.Omega1 || radius == secmodel.Omega2 {
		gateStatus = r.Gate.Check()
		if !gateStatus.Passing() && r.StrictMode {
			metrics := r.Gate.Metrics()
			decision := secmodel.PolicyDecision{
				Outcome:     secmodel.Deny,
				BlastRadius: radius,
				GateStatus:  gateStatus,
				Rationale:   fmt.Sprintf("Monitorability gate failed: %s", gateStatus),
				Metrics:     metrics,
			}
			if auditErr := r.logAudit(call, &manifest, decision, false, nil, fmt.Errorf("GateFailedError")); auditErr != nil {
				return &manifest, decision, auditErr
			}
			reason := r.Gate.FailureReason(gateStatus)
			if reason == "" {
				reason = gateStatus.String()
			}
			r.logEvent(logging.LevelWarn, logging.CategoryGate, "gate_failed", call.ToolID, reason)
			return &manifest, decision, secmodel.NewGateFailedError(reason)
		}
	}

	// Step: Policy evaluation (the mandatory six-step order).
	decision := r.Policy.Evaluate(call, &manifest, gateStatus)
	if r.RiskScorer != nil {
		r.RiskScorer.Annotate(&decision, call)
	}

	switch decision.Outcome {
	case secmodel.Deny:
		if auditErr := r.logAudit(call, &manifest, decision, false, nil, fmt.Errorf("PolicyDeniedError")); auditErr != nil {
			return &manifest, decision, auditErr
		}
		r.logEvent(logging.LevelInfo, logging.CategoryPolicy, "policy_denied", call.ToolID, decision.Rationale)
		return &manifest, decision, secmodel.NewPolicyDeniedError(decision.Rationale)
	case secmodel.Review:
		r.Emptiness.RecordBlockedCall(call)
		if auditErr := r.logAudit(call, &manifest, decision, false, nil, fmt.Errorf("RequiresReview")); auditErr != nil {
			return &manifest, decision, auditErr
		}
		r.logEvent(logging.LevelInfo, logging.CategoryPolicy, "requires_review", call.ToolID, decision.Rationale)
		return &manifest, decision, secmodel.NewPolicyDeniedError("requires human review: " + decision.Rationale)
	}

	r.logEvent(logging.LevelInfo, logging.CategorySecurity, "decision_allow", call.ToolID, "call allowed")
	return &manifest, decision, nil
}

// EnterEmptiness activates the Emptiness Window.
func (r *Runtime) EnterEmptiness(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Emptiness.Activate(reason)
	r.logEvent(logging.LevelWarn, logging.CategoryEmptiness, "enter", "", reason)
}

// ExitEmptiness deactivates the Emptiness Window, generating a review
// packet when requireReview is true and at least one call was buffered.
func (r *Runtime) ExitEmptiness(requireReview bool) (secmodel.ReviewPacket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	packet, hasPacket := r.Emptiness.Deactivate(requireReview)
	r.logEvent(logging.LevelInfo, logging.CategoryEmptiness, "exit", "", "emptiness window deactivated")
	return packet, hasPacket
}

// EmergencyStop latches the emergency gate active.
func (r *Runtime) EmergencyStop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Emergency.Activate(reason)
	r.logEvent(logging.LevelError, logging.CategorySecurity, "emergency_stop", "", reason)
}

// EmergencyClear deactivates the emergency gate.
func (r *Runtime) EmergencyClear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Emergency.Deactivate()
	r.logEvent(logging.LevelInfo, logging.CategorySecurity, "emergency_clear", "", "emergency gate cleared")
}

// GrantApproval time-bounds an Omega2 approval for toolID. Routed through
// Runtime (rather than callers reaching into r.Policy directly) so the
// grant can never land mid-evaluate.
func (r *Runtime) GrantApproval(toolID string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Policy.GrantOmega2Approval(toolID, duration)
	r.logEvent(logging.LevelWarn, logging.CategoryPolicy, "approval_granted", toolID, fmt.Sprintf("omega2 approval granted for %s", duration))
}

// RevokeApproval removes any standing Omega2 approval for toolID.
func (r *Runtime) RevokeApproval(toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Policy.RevokeOmega2Approval(toolID)
	r.logEvent(logging.LevelInfo, logging.CategoryPolicy, "approval_revoked", toolID, "omega2 approval revoked")
}

// BlockTool adds toolID to the policy blocklist.
func (r *Runtime) BlockTool(toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Policy.BlockTool(toolID)
	r.logEvent(logging.LevelWarn, logging.CategoryPolicy, "tool_blocked", toolID, "tool added to blocklist")
}

// UnblockTool removes toolID from the policy blocklist.
func (r *Runtime) UnblockTool(toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Policy.UnblockTool(toolID)
	r.logEvent(logging.LevelInfo, logging.CategoryPolicy, "tool_unblocked", toolID, "tool removed from blocklist")
}

// Status is the JSON-ready runtime snapshot from spec.md §6.
type Status struct {
	Emptiness       emptiness.Status `json:"emptiness"`
	EmergencyActive bool             `json:"emergency_active"`
	EmergencyReason string           `json:"emergency_reason"`
	RegisteredTools int              `json:"registered_tools"`
	AuditSummary    audit.Summary    `json:"audit_summary"`
}

// GetStatus reports the runtime's current state snapshot.
func (r *Runtime) GetStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Emptiness:       r.Emptiness.Status(),
		EmergencyActive: r.Emergency.IsActive(),
		EmergencyReason: r.Emergency.Reason(),
		RegisteredTools: r.Registry.Count(),
		AuditSummary:    r.Audit.Summary(),
	}
}
