package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReviewTransitions(t *testing.T) {
	sm := NewReviewStateMachine()

	assert.True(t, sm.CanTransition("pending", "approved"))
	assert.True(t, sm.CanTransition("pending", "rejected"))
	assert.True(t, sm.CanTransition("rejected", "pending"))

	assert.False(t, sm.CanTransition("approved", "rejected"))
	assert.False(t, sm.CanTransition("approved", "pending"))
	assert.False(t, sm.CanTransition("rejected", "approved"))
	assert.False(t, sm.CanTransition("pending", "pending"))
}

func TestUnknownState(t *testing.T) {
	sm := NewReviewStateMachine()

	assert.False(t, sm.CanTransition("draft", "pending"))
	assert.Empty(t, sm.GetAllowedTransitions("draft"))
}

func TestGetAllowedTransitions(t *testing.T) {
	sm := NewReviewStateMachine()

	assert.ElementsMatch(t, []string{"approved", "rejected"}, sm.GetAllowedTransitions("pending"))
	assert.Empty(t, sm.GetAllowedTransitions("approved"))
}
