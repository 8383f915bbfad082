// Package secureregistry is the conversational-agent-facing façade over
// runtime.Runtime. It resolves spec.md §9's dual-path open question: there
// is exactly one execution path. A tool's executor is registered directly
// with the runtime, and Execute calls straight into runtime.Runtime.Execute
// — there is no separate unaudited execution path a caller could reach.
package secureregistry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fitsec/sentinel/pkg/logging"
	"github.com/fitsec/sentinel/pkg/registry"
	"github.com/fitsec/sentinel/pkg/runtime"
	"github.com/fitsec/sentinel/pkg/secmodel"
)

// Tool is the conversational-agent tool surface this façade accepts.
// Adapted from the teacher's pkg/tool.Tool interface, trimmed to this
// domain's plain map[string]any/any convention instead of the teacher's
// builtin.Result/TOON encoding (out of scope for a security mediation
// layer that only needs to pass args through, not render tool output).
type Tool interface {
	Name() string
	Description() string
	Execute(action string, args map[string]any) (any, error)
}

// DefaultOmegaMappings is the starter tool_id -> BlastRadius table,
// grounded on the teacher's Python original DEFAULT_OMEGA_MAPPINGS.
// Registry.Register consults this only when no explicit radius is given.
var DefaultOmegaMappings = map[string]secmodel.BlastRadius{
	"read_file":  secmodel.Omega0,
	"list_dir":   secmodel.Omega0,
	"web_search": secmodel.Omega0,
	"web_fetch":  secmodel.Omega0,
	"message":    secmodel.Omega0,

	"write_file": secmodel.Omega1,
	"edit_file":  secmodel.Omega1,

	"exec":  secmodel.Omega2,
	"spawn": secmodel.Omega2,
	"cron":  secmodel.Omega2,
}

// Registry binds conversational Tool implementations to a runtime.Runtime,
// tracking them separately only so Get/List/Has can answer without going
// through the runtime's manifest registry (which has no notion of the
// richer Tool interface, only manifests and raw executors).
type Registry struct {
	mu      sync.RWMutex
	runtime *runtime.Runtime
	tools   map[string]Tool
	mapping map[string]secmodel.BlastRadius
}

// New wraps rt. mapping overrides DefaultOmegaMappings; pass nil to use
// only the defaults.
func New(rt *runtime.Runtime, mapping map[string]secmodel.BlastRadius) *Registry {
	merged := make(map[string]secmodel.BlastRadius, len(DefaultOmegaMappings)+len(mapping))
	for k, v := range DefaultOmegaMappings {
		merged[k] = v
	}
	for k, v := range mapping {
		merged[k] = v
	}
	return &Registry{
		runtime: rt,
		tools:   make(map[string]Tool),
		mapping: merged,
	}
}

// logEvent is a best-effort pass-through to the underlying runtime's
// attached logger, if any. Façade-level events (registration, rejection
// of an unregistered call) live in CategoryAdmin since they describe the
// façade's own bookkeeping rather than a runtime security decision.
func (r *Registry) logEvent(level logging.Level, eventType, toolID, message string) {
	if r.runtime.Logging == nil {
		return
	}
	_ = r.runtime.Logging.Log(logging.Event{
		Level:     level,
		Category:  logging.CategoryAdmin,
		EventType: eventType,
		ToolID:    toolID,
		Message:   message,
	})
}

// Register declares tool with the runtime. radius, if non-nil, overrides
// the default Omega mapping (falling back to Omega1 — the conservative
// middle tier — for any tool named in neither).
func (r *Registry) Register(tool Tool, radius *secmodel.BlastRadius) {
	level := secmodel.Omega1
	if radius != nil {
		level = *radius
	} else if mapped, ok := r.mapping[tool.Name()]; ok {
		level = mapped
	}

	manifest := secmodel.ToolManifest{
		ToolID:           tool.Name(),
		BlastRadius:      level,
		Description:      tool.Description(),
		RequiresApproval: level == secmodel.Omega2,
	}

	executor := func(action string, args map[string]any) (any, error) {
		return tool.Execute(action, args)
	}

	r.mu.Lock()
	r.tools[tool.Name()] = tool
	r.mu.Unlock()

	r.runtime.RegisterTool(manifest, registry.Executor(executor))
	r.logEvent(logging.LevelInfo, "tool_registered", tool.Name(), fmt.Sprintf("registered at %s", level))
}

// Unregister removes tool from the façade's own tracking. The runtime's
// manifest registry is untouched so prior audit entries still resolve,
// matching registry.Registry.Remove's own "history stays put" contract —
// callers who truly want the manifest gone should call
// Registry.Runtime().Registry.Remove directly.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the registered Tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is currently registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Runtime exposes the underlying runtime for status/admin access.
func (r *Registry) Runtime() *runtime.Runtime {
	return r.runtime
}

// Execute is the single entry point a conversational agent calls. It goes
// straight through runtime.Runtime.Execute — the only place that audits
// — and renders a blocked outcome as a conversational string rather than
// a typed error, per spec.md §7, while the underlying audit entry for that
// denial has already been written unconditionally by the time this
// function constructs the string.
func (r *Registry) Execute(ctx context.Context, name string, action string, args map[string]any) (any, error) {
	if !r.Has(name) {
		r.logEvent(logging.LevelWarn, "call_rejected", name, "tool not registered with façade")
		return nil, fmt.Errorf("[NOT REGISTERED] tool %q is not registered", name)
	}

	result, err := r.runtime.Execute(ctx, secmodel.ToolCall{ToolID: name, Action: action, Args: args}, false)
	if err == nil {
		r.logEvent(logging.LevelInfo, "call_executed", name, "call executed")
		return result, nil
	}

	switch err.(type) {
	case *secmodel.PolicyDeniedError:
		r.logEvent(logging.LevelInfo, "call_denied", name, err.Error())
		return nil, fmt.Errorf("[POLICY DENIED] %s", err.(*secmodel.PolicyDeniedError).Rationale)
	case *secmodel.GateFailedError:
		r.logEvent(logging.LevelWarn, "call_denied", name, err.Error())
		return nil, fmt.Errorf("[GATE FAILED] %v", err)
	case *secmodel.EmptinessActiveError:
		r.logEvent(logging.LevelInfo, "call_denied", name, err.Error())
		return nil, fmt.Errorf("[EMPTINESS ACTIVE] %v", err)
	case *secmodel.ToolNotRegisteredError:
		r.logEvent(logging.LevelWarn, "call_denied", name, err.Error())
		return nil, fmt.Errorf("[NOT REGISTERED] %v", err)
	case *secmodel.AuditSinkError:
		r.logEvent(logging.LevelError, "audit_sink_failed", name, err.Error())
		return nil, fmt.Errorf("[AUDIT SINK ERROR] %v", err)
	default:
		r.logEvent(logging.LevelError, "call_faulted", name, err.Error())
		return nil, err
	}
}

// GrantApproval is a thin convenience wrapper for the runtime's policy
// engine, routed through runtime.Runtime.GrantApproval so the grant is
// serialized with evaluate() like every other policy mutation.
func (r *Registry) GrantApproval(toolID string, durationSeconds int) {
	r.runtime.GrantApproval(toolID, time.Duration(durationSeconds)*time.Second)
}
