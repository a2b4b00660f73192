package submissions

import (
	"thesis-portal/thesis-portal-backend/internal/identity"
)

// PhaseRecord summarizes an owner's standing in one phase
type PhaseRecord struct {
	// Approved means the phase has an approved submission.
	Approved bool
	// Active means the phase has a pending or approved submission.
	Active bool
}

// OwnerState is everything the eligibility check needs about an owner
type OwnerState struct {
	HasSupervisor        bool
	RegistrationApproved bool
	Phases               map[identity.Phase]PhaseRecord
}

// CanSubmit decides whether the owner may create a submission for the given
// phase. Conditions are checked in order and the first failure wins:
// supervisor, registration, no active submission for the phase, then prior
// phase approval (P2 needs P1 approved, P3 needs P2 approved).
func CanSubmit(state OwnerState, phase identity.Phase) error {
	if !state.HasSupervisor {
		return &IneligibleError{Reason: ReasonNoSupervisor}
	}
	if !state.RegistrationApproved {
		return &IneligibleError{Reason: ReasonRegistrationPending}
	}
	if state.Phases[phase].Active {
		return &IneligibleError{Reason: ReasonAlreadySubmitted}
	}

	switch phase {
	case identity.PhaseP2:
		if !state.Phases[identity.PhaseP1].Approved {
			return &IneligibleError{Reason: ReasonP1NotApproved}
		}
	case identity.PhaseP3:
		if !state.Phases[identity.PhaseP2].Approved {
			return &IneligibleError{Reason: ReasonP2NotApproved}
		}
	}
	return nil
}
