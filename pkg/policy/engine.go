// Package policy implements the static policy engine: blocklist, grants,
// time-bounded Omega2 approvals, and the six-step first-match-wins
// evaluation order from spec.md §4.3. Evaluation never performs I/O.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fitsec/sentinel/pkg/secmodel"
)

// Engine holds the mutable policy state: grants, blocklist, time-bounded
// Omega2 approvals, and the network domain allowlist. All mutation goes
// through the engine's own methods so it can be serialized with
// evaluation by the orchestrator's single critical-section lock.
type Engine struct {
	mu                sync.Mutex
	grants            map[string]map[string]struct{} // tool_id -> allowed actions ("*" = all)
	blocklist         map[string]struct{}
	approvals         map[string]time.Time // tool_id -> expiry
	networkAllowlist  map[string]struct{}
	defaultOmega2Deny bool
}

// NewEngine creates a policy engine. defaultOmega2Deny selects between
// spec.md §4.3 rule 5's two terminal branches for an unreviewed Omega2
// call with no approval or grant: Deny when true, Review when false.
func NewEngine(defaultOmega2Deny bool) *Engine {
	return &Engine{
		grants:           make(map[string]map[string]struct{}),
		blocklist:        make(map[string]struct{}),
		approvals:        make(map[string]time.Time),
		networkAllowlist: make(map[string]struct{}),
		defaultOmega2Deny: defaultOmega2Deny,
	}
}

// document mirrors the persisted policy JSON from spec.md §6.
type document struct {
	Grants                 map[string][]string `json:"grants"`
	BlockedTools           []string             `json:"blocked_tools"`
	AllowedNetworkDomains  []string             `json:"allowed_network_domains"`
}

// LoadDocument loads grants/blocklist/network-allowlist from a JSON
// document shaped per spec.md §6. Missing keys default to empty, and
// loading replaces the current grants/blocklist/allowlist wholesale
// (approvals are runtime-only and untouched by document loads).
func (e *Engine) LoadDocument(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse policy document: %w", err)
	}

	grants := make(map[string]map[string]struct{}, len(doc.Grants))
	for toolID, actions := range doc.Grants {
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		grants[toolID] = set
	}

	blocklist := make(map[string]struct{}, len(doc.BlockedTools))
	for _, id := range doc.BlockedTools {
		blocklist[id] = struct{}{}
	}

	allowlist := make(map[string]struct{}, len(doc.AllowedNetworkDomains))
	for _, d := range doc.AllowedNetworkDomains {
		allowlist[d] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.grants = grants
	e.blocklist = blocklist
	e.networkAllowlist = allowlist
	return nil
}

// LoadDocumentFile reads and loads a policy document from path.
func (e *Engine) LoadDocumentFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy document: %w", err)
	}
	return e.LoadDocument(data)
}

// Evaluate runs the fixed six-step evaluation order against call/manifest.
// manifest may be nil (unregistered tool). gateStatus is the
// already-computed monitorability gate status for this call (Pass by
// convention for Omega0, where the gate is never consulted).
func (e *Engine) Evaluate(call secmodel.ToolCall, manifest *secmodel.ToolManifest, gateStatus secmodel.GateStatus) secmodel.PolicyDecision {
	now := time.Now()

	// Rule 1: manifest absent -> Deny.
	if manifest == nil {
		return secmodel.PolicyDecision{
			Outcome:     secmodel.Deny,
			BlastRadius: secmodel.Unknown,
			GateStatus:  gateStatus,
			Rationale:   "Tool not registered",
			Timestamp:   now,
		}
	}

	radius := manifest.BlastRadius

	e.mu.Lock()
	defer e.mu.Unlock()

	// Rule 2: blocklisted -> Deny. Precedes grants: a grant is an
	// allowlist, never a shortcut past the blocklist.
	if _, blocked := e.blocklist[call.ToolID]; blocked {
		return secmodel.PolicyDecision{
			Outcome:     secmodel.Deny,
			BlastRadius: radius,
			GateStatus:  gateStatus,
			Rationale:   fmt.Sprintf("Tool %q blocked by policy", call.ToolID),
			Timestamp:   now,
		}
	}

	// Rule 3: Omega0 -> Allow.
	if radius == secmodel.Omega0 {
		return secmodel.PolicyDecision{
			Outcome:     secmodel.Allow,
			BlastRadius: radius,
			GateStatus:  gateStatus,
			Rationale:   "O0 safe, allowed by default",
			Timestamp:   now,
		}
	}

	// Rule 4: Omega1 -> Allow iff gate Pass or Unknown.
	if radius == secmodel.Omega1 {
		if gateStatus.Passing() {
			return secmodel.PolicyDecision{
				Outcome:     secmodel.Allow,
				BlastRadius: radius,
				GateStatus:  gateStatus,
				Rationale:   "O1 allowed with monitorability gate " + gateStatus.String(),
				Timestamp:   now,
			}
		}
		return secmodel.PolicyDecision{
			Outcome:     secmodel.Deny,
			BlastRadius: radius,
			GateStatus:  gateStatus,
			Rationale:   fmt.Sprintf("O1 blocked: gate failure (%s)", gateStatus),
			Timestamp:   now,
		}
	}

	// Rule 5: Omega2.
	if radius == secmodel.Omega2 {
		if expiry, ok := e.approvals[call.ToolID]; ok {
			if now.Before(expiry) {
				return secmodel.PolicyDecision{
					Outcome:     secmodel.Allow,
					BlastRadius: radius,
					GateStatus:  gateStatus,
					Rationale:   "O2 explicitly approved (time-bounded)",
					Timestamp:   now,
				}
			}
			// Expired approval: lazily prune.
			delete(e.approvals, call.ToolID)
		}

		if actions, ok := e.grants[call.ToolID]; ok {
			if _, any := actions["*"]; any {
				return secmodel.PolicyDecision{
					Outcome:     secmodel.Allow,
					BlastRadius: radius,
					GateStatus:  gateStatus,
					Rationale:   "O2 granted by policy",
					Timestamp:   now,
				}
			}
			if _, ok := actions[call.Action]; ok {
				return secmodel.PolicyDecision{
					Outcome:     secmodel.Allow,
					BlastRadius: radius,
					GateStatus:  gateStatus,
					Rationale:   "O2 granted by policy",
					Timestamp:   now,
				}
			}
		}

		if e.defaultOmega2Deny {
			return secmodel.PolicyDecision{
				Outcome:     secmodel.Deny,
				BlastRadius: radius,
				GateStatus:  gateStatus,
				Rationale:   "O2 requires approval: denied by default",
				Timestamp:   now,
			}
		}
		return secmodel.PolicyDecision{
			Outcome:     secmodel.Review,
			BlastRadius: radius,
			GateStatus:  gateStatus,
			Rationale:   "O2 requires human review",
			Timestamp:   now,
		}
	}

	// Rule 6: Unknown -> Deny.
	return secmodel.PolicyDecision{
		Outcome:     secmodel.Deny,
		BlastRadius: radius,
		GateStatus:  gateStatus,
		Rationale:   "Unknown blast radius - denied for safety",
		Timestamp:   now,
	}
}

// GrantOmega2Approval grants a time-bounded approval for tool_id, expiring
// duration from now. Zero or negative duration grants an already-expired
// approval (never allows).
func (e *Engine) GrantOmega2Approval(toolID string, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.approvals[toolID] = time.Now().Add(duration)
}

// RevokeOmega2Approval clears any outstanding approval for tool_id.
func (e *Engine) RevokeOmega2Approval(toolID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.approvals, toolID)
}

// BlockTool adds tool_id to the blocklist.
func (e *Engine) BlockTool(toolID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocklist[toolID] = struct{}{}
}

// UnblockTool removes tool_id from the blocklist.
func (e *Engine) UnblockTool(toolID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.blocklist, toolID)
}

// Grant adds allowed actions for tool_id to the grants map ("*" for all).
func (e *Engine) Grant(toolID string, actions ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.grants[toolID]
	if !ok {
		set = make(map[string]struct{})
		e.grants[toolID] = set
	}
	for _, a := range actions {
		set[a] = struct{}{}
	}
}

// AddNetworkDomain adds a domain to the network egress allowlist.
func (e *Engine) AddNetworkDomain(domain string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.networkAllowlist[domain] = struct{}{}
}

// NetworkAllowlist returns the configured network domain allowlist. It is
// queryable but, per spec.md §9's open question, not consulted by
// Evaluate — whether it should gate Omega1 network tools is left
// unresolved rather than guessed.
func (e *Engine) NetworkAllowlist() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.networkAllowlist))
	for d := range e.networkAllowlist {
		out = append(out, d)
	}
	return out
}
