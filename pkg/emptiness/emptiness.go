// Package emptiness implements the sticky safety-mode controller: the
// "Emptiness Window" that removes commit power (Omega1/Omega2) while
// preserving Omega0 reasoning, and generates review packets on exit.
package emptiness

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitsec/sentinel/pkg/secmodel"
)

// Controller is the Emptiness Window state machine. It never auto-exits:
// once active, it stays active until Deactivate is called explicitly.
type Controller struct {
	mu             sync.Mutex
	state          secmodel.EmptinessState
	activatedAt    time.Time
	activationReason string
	blocked        []secmodel.ToolCall
	packets        []secmodel.ReviewPacket
}

// NewController creates a controller starting in the Normal state.
func NewController() *Controller {
	return &Controller{state: secmodel.StateNormal}
}

// Activate transitions Normal->Emptiness, clearing the blocked-call buffer.
// A no-op if already active.
func (c *Controller) Activate(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != secmodel.StateNormal {
		return
	}
	c.state = secmodel.StateEmptiness
	c.activatedAt = time.Now()
	c.activationReason = reason
	c.blocked = nil
}

// Deactivate transitions Emptiness->Normal. If requireReview is true and
// at least one call was buffered, a ReviewPacket is constructed, retained,
// and returned. A no-op (returns a zero ReviewPacket and false) if not
// currently active.
func (c *Controller) Deactivate(requireReview bool) (secmodel.ReviewPacket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != secmodel.StateEmptiness {
		return secmodel.ReviewPacket{}, false
	}

	var packet secmodel.ReviewPacket
	var generated bool
	if requireReview && len(c.blocked) > 0 {
		rec := fmt.Sprintf("%d action(s) blocked during emptiness window", len(c.blocked))
		packet = secmodel.ReviewPacket{
			PacketID:       uuid.NewString(),
			Timestamp:      time.Now(),
			BlockedCalls:   append([]secmodel.ToolCall{}, c.blocked...),
			Recommendation: &rec,
		}
		c.packets = append(c.packets, packet)
		generated = true
	}

	c.state = secmodel.StateNormal
	c.activatedAt = time.Time{}
	c.activationReason = ""
	c.blocked = nil

	return packet, generated
}

// CheckAllowed reports whether an action at the given blast radius may
// proceed: true iff Normal, or the radius is Omega0.
func (c *Controller) CheckAllowed(radius secmodel.BlastRadius) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == secmodel.StateNormal {
		return true
	}
	return radius == secmodel.Omega0
}

// RecordBlockedCall appends a call to the buffer while Emptiness is active;
// ignored in Normal state.
func (c *Controller) RecordBlockedCall(call secmodel.ToolCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != secmodel.StateEmptiness {
		return
	}
	c.blocked = append(c.blocked, call)
}

// IsActive reports whether the controller is currently in Emptiness state.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == secmodel.StateEmptiness
}

// Status is the JSON-ready snapshot returned by the runtime's get_status.
type Status struct {
	State             secmodel.EmptinessState `json:"state"`
	IsActive          bool                    `json:"is_active"`
	ActivatedAt       *time.Time              `json:"activated_at"`
	ActivationReason  string                  `json:"activation_reason"`
	BlockedCallsCount int                     `json:"blocked_calls_count"`
	DurationSeconds   *float64                `json:"duration_seconds"`
}

// Status returns the current state as a JSON-ready snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:             c.state,
		IsActive:          c.state == secmodel.StateEmptiness,
		ActivationReason:  c.activationReason,
		BlockedCallsCount: len(c.blocked),
	}
	if !c.activatedAt.IsZero() {
		at := c.activatedAt
		s.ActivatedAt = &at
		d := time.Since(c.activatedAt).Seconds()
		s.DurationSeconds = &d
	}
	return s
}

// ReviewPackets returns all review packets generated across every
// activation of this controller, most-recent-last.
func (c *Controller) ReviewPackets() []secmodel.ReviewPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]secmodel.ReviewPacket, len(c.packets))
	copy(out, c.packets)
	return out
}

// BlockedCalls returns a copy of the current activation's blocked-call
// buffer.
func (c *Controller) BlockedCalls() []secmodel.ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]secmodel.ToolCall, len(c.blocked))
	copy(out, c.blocked)
	return out
}
