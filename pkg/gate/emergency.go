package gate

import "sync"

// EmergencyGate is a latching boolean with an attached reason. While
// active, the orchestrator denies any call above Omega0 before policy
// evaluation, regardless of the monitorability gate's status.
type EmergencyGate struct {
	mu     sync.RWMutex
	active bool
	reason string
}

// NewEmergencyGate creates an inactive emergency gate.
func NewEmergencyGate() *EmergencyGate {
	return &EmergencyGate{}
}

// Activate latches the gate active with the given reason.
func (e *EmergencyGate) Activate(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = true
	e.reason = reason
}

// Deactivate clears the gate.
func (e *EmergencyGate) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	e.reason = ""
}

// IsActive reports whether the emergency gate is currently latched.
func (e *EmergencyGate) IsActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Reason returns the activation reason, or "" when inactive.
func (e *EmergencyGate) Reason() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reason
}
