package workflows

// StateMachine enforces review status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewReviewStateMachine creates the state machine governing reviewable
// records: registrations and phase submissions. The rejected to pending
// edge is the resubmission path.
func NewReviewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			"pending":  {"approved", "rejected"},
			"approved": {},
			"rejected": {"pending"},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}
