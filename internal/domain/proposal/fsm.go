package proposal

import (
	"strings"

	"loan-proposal-service/internal/domain/errs"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleAnalyst  Role = "analyst"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by the orchestrator for transitions driven by external callbacks.
	RoleSystem Role = "system"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOperator, RoleAnalyst, RoleAdmin, RoleSystem:
		return r, true
	}
	return "", false
}

// transitions is the only place that defines legal edges. Missing keys have no outgoing edges.
var transitions = map[Status][]Status{
	StatusAwaitingAnalysis:  {StatusInAnalysis, StatusApproved, StatusRejected, StatusPending},
	StatusInAnalysis:        {StatusApproved, StatusRejected, StatusPending},
	StatusPending:           {StatusAwaitingAnalysis},
	StatusApproved:          {StatusCCBGenerated},
	StatusCCBGenerated:      {StatusAwaitingSignature},
	StatusAwaitingSignature: {StatusSignatureDone, StatusCanceled},
	StatusSignatureDone:     {StatusInstrumentsIssued},
	StatusInstrumentsIssued: {StatusPaymentPending, StatusPaymentPartial, StatusPaymentConfirmed},
}

// operatorTargets restricts the operator role; other roles use the full table.
var operatorTargets = map[Status]bool{
	StatusAwaitingAnalysis: true,
	StatusCCBGenerated:     true,
	StatusCanceled:         true,
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses lists legal targets of from.
func NextStatuses(from Status) []Status {
	out := make([]Status, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

func RoleAllowed(role Role, from, to Status) bool {
	switch role {
	case RoleAnalyst, RoleAdmin, RoleSystem:
		return true
	case RoleOperator:
		return operatorTargets[to]
	default:
		return false
	}
}

// CheckTransition validates an edge for a role: table first, then the role matrix.
func CheckTransition(role Role, from, to Status) error {
	if !CanTransition(from, to) {
		return &errs.InvalidTransitionError{From: string(from), To: string(to)}
	}
	if !RoleAllowed(role, from, to) {
		return &errs.UnauthorizedTransitionError{Role: string(role), From: string(from), To: string(to)}
	}
	return nil
}

// RequiresObservation reports whether entering to needs a non-empty observation.
func RequiresObservation(to Status) bool { return to == StatusPending }
