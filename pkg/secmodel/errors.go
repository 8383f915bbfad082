package secmodel

import (
	"fmt"

	fiterrors "github.com/fitsec/sentinel/pkg/errors"
)

// ToolNotRegisteredError is raised when a manifest is absent for tool_id.
type ToolNotRegisteredError struct{ *fiterrors.Error }

func NewToolNotRegisteredError(toolID string) *ToolNotRegisteredError {
	return &ToolNotRegisteredError{
		fiterrors.New(fiterrors.CodeToolNotRegistered, fmt.Sprintf("tool %q not registered", toolID)).
			WithContext("tool_id", toolID),
	}
}

// PolicyDeniedError is raised when policy evaluation returns Deny, or Review
// without the review requirement being met. Carries the rationale.
type PolicyDeniedError struct {
	*fiterrors.Error
	Rationale string
}

func NewPolicyDeniedError(rationale string) *PolicyDeniedError {
	return &PolicyDeniedError{
		Error:     fiterrors.New(fiterrors.CodePolicyDenied, rationale),
		Rationale: rationale,
	}
}

// GateFailedError is raised when the monitorability gate or emergency gate
// denies a call.
type GateFailedError struct{ *fiterrors.Error }

func NewGateFailedError(reason string) *GateFailedError {
	return &GateFailedError{fiterrors.New(fiterrors.CodeGateFailed, reason)}
}

// EmptinessActiveError is raised when the emptiness window denies an
// Omega1/Omega2 call.
type EmptinessActiveError struct{ *fiterrors.Error }

func NewEmptinessActiveError(toolID string, radius BlastRadius) *EmptinessActiveError {
	return &EmptinessActiveError{
		fiterrors.New(fiterrors.CodeEmptinessActive,
			fmt.Sprintf("action blocked: emptiness window active (%s)", radius)).
			WithContext("tool_id", toolID),
	}
}

// ExecutorMissingError is raised when a manifest exists but no executor was
// registered for it.
type ExecutorMissingError struct{ *fiterrors.Error }

func NewExecutorMissingError(toolID string) *ExecutorMissingError {
	return &ExecutorMissingError{
		fiterrors.New(fiterrors.CodeExecutorMissing, fmt.Sprintf("no executor registered for %q", toolID)).
			WithContext("tool_id", toolID),
	}
}

// ExecutorFaultError wraps an error raised by the tool's own executor.
type ExecutorFaultError struct{ *fiterrors.Error }

func NewExecutorFaultError(toolID string, cause error) *ExecutorFaultError {
	return &ExecutorFaultError{
		fiterrors.Wrap(cause, fiterrors.CodeExecutorFault, fmt.Sprintf("executor for %q faulted", toolID)).
			WithContext("tool_id", toolID),
	}
}

// AuditSinkError is raised when the durable audit sink fails to accept a
// write. Fail-closed: a broken audit trail is a system fault, not a silent
// drop, and is treated as a denial from the caller's perspective.
type AuditSinkError struct{ *fiterrors.Error }

func NewAuditSinkError(toolID string, cause error) *AuditSinkError {
	return &AuditSinkError{
		fiterrors.Wrap(cause, fiterrors.CodeAuditSink, fmt.Sprintf("audit sink write failed for %q", toolID)).
			WithContext("tool_id", toolID),
	}
}
