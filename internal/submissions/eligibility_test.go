package submissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"thesis-portal/thesis-portal-backend/internal/identity"
)

func eligibleState() OwnerState {
	return OwnerState{
		HasSupervisor:        true,
		RegistrationApproved: true,
		Phases:               map[identity.Phase]PhaseRecord{},
	}
}

func TestCanSubmitP1(t *testing.T) {
	assert.NoError(t, CanSubmit(eligibleState(), identity.PhaseP1))
}

func TestCanSubmitOrderedConditions(t *testing.T) {
	tests := []struct {
		name   string
		state  func() OwnerState
		phase  identity.Phase
		reason string
	}{
		{
			name: "no supervisor wins over everything",
			state: func() OwnerState {
				s := eligibleState()
				s.HasSupervisor = false
				s.RegistrationApproved = false
				return s
			},
			phase:  identity.PhaseP1,
			reason: ReasonNoSupervisor,
		},
		{
			name: "registration not approved",
			state: func() OwnerState {
				s := eligibleState()
				s.RegistrationApproved = false
				return s
			},
			phase:  identity.PhaseP1,
			reason: ReasonRegistrationPending,
		},
		{
			name: "pending submission blocks the phase",
			state: func() OwnerState {
				s := eligibleState()
				s.Phases[identity.PhaseP1] = PhaseRecord{Active: true}
				return s
			},
			phase:  identity.PhaseP1,
			reason: ReasonAlreadySubmitted,
		},
		{
			name: "approved submission blocks the phase",
			state: func() OwnerState {
				s := eligibleState()
				s.Phases[identity.PhaseP1] = PhaseRecord{Approved: true, Active: true}
				return s
			},
			phase:  identity.PhaseP1,
			reason: ReasonAlreadySubmitted,
		},
		{
			name:   "P2 requires P1 approved",
			state:  eligibleState,
			phase:  identity.PhaseP2,
			reason: ReasonP1NotApproved,
		},
		{
			name: "P2 with only pending P1 is still blocked",
			state: func() OwnerState {
				s := eligibleState()
				s.Phases[identity.PhaseP1] = PhaseRecord{Active: true}
				return s
			},
			phase:  identity.PhaseP2,
			reason: ReasonP1NotApproved,
		},
		{
			name: "P3 requires P2 approved",
			state: func() OwnerState {
				s := eligibleState()
				s.Phases[identity.PhaseP1] = PhaseRecord{Approved: true, Active: true}
				return s
			},
			phase:  identity.PhaseP3,
			reason: ReasonP2NotApproved,
		},
		{
			name: "already submitted reported before prior phase",
			state: func() OwnerState {
				s := eligibleState()
				s.Phases[identity.PhaseP2] = PhaseRecord{Active: true}
				return s
			},
			phase:  identity.PhaseP2,
			reason: ReasonAlreadySubmitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanSubmit(tt.state(), tt.phase)
			var ineligible *IneligibleError
			assert.ErrorAs(t, err, &ineligible)
			assert.Equal(t, tt.reason, ineligible.Reason)
		})
	}
}

func TestCanSubmitProgression(t *testing.T) {
	state := eligibleState()
	state.Phases[identity.PhaseP1] = PhaseRecord{Approved: true, Active: true}

	assert.NoError(t, CanSubmit(state, identity.PhaseP2))

	state.Phases[identity.PhaseP2] = PhaseRecord{Approved: true, Active: true}
	assert.NoError(t, CanSubmit(state, identity.PhaseP3))
}

// A rejected submission leaves the phase open again: rejected rows are
// neither approved nor active.
func TestCanSubmitAfterRejection(t *testing.T) {
	state := eligibleState()
	state.Phases[identity.PhaseP1] = PhaseRecord{}

	assert.NoError(t, CanSubmit(state, identity.PhaseP1))
}
