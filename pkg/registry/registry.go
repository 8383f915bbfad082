// Package registry holds the manifest registry: the runtime's map of
// tool_id -> (manifest, executor). It is consulted only inside the
// orchestrator's critical path and never itself enforces policy.
package registry

import (
	"sync"

	"github.com/fitsec/sentinel/pkg/secmodel"
)

// Executor invokes a registered tool's native execution path with the
// action sub-identifier and the call's args, returning a result value or
// an error. Suspension (I/O, network) is permitted here — it is the only
// sanctioned blocking point in the runtime's critical path besides the
// durable audit-sink write.
type Executor func(action string, args map[string]any) (any, error)

// Registry maps tool_id to its declared manifest and executor callback.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]secmodel.ToolManifest
	executors map[string]Executor
}

// New creates an empty manifest registry.
func New() *Registry {
	return &Registry{
		manifests: make(map[string]secmodel.ToolManifest),
		executors: make(map[string]Executor),
	}
}

// Register stores a manifest and optional executor for tool_id. Idempotent
// when the manifest is unchanged; registering a differing manifest for an
// already-registered tool_id replaces it (the caller is responsible for
// avoiding accidental replacement).
func (r *Registry) Register(manifest secmodel.ToolManifest, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifests[manifest.ToolID] = manifest
	if executor != nil {
		r.executors[manifest.ToolID] = executor
	}
}

// Remove unregisters a tool_id's live routing. Audit entries already
// written keep their own copy of the manifest by value, so removal never
// rewrites history.
func (r *Registry) Remove(toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.manifests, toolID)
	delete(r.executors, toolID)
}

// GetManifest returns the manifest for tool_id, if any.
func (r *Registry) GetManifest(toolID string) (secmodel.ToolManifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[toolID]
	return m, ok
}

// GetExecutor returns the executor callback for tool_id, if any.
func (r *Registry) GetExecutor(toolID string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[toolID]
	return e, ok
}

// List returns a snapshot of all registered manifests.
func (r *Registry) List() []secmodel.ToolManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]secmodel.ToolManifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.manifests)
}
