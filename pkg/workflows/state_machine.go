package workflows

// StateMachine enforces entity status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine builds a state machine from an allowed-transition table
func NewStateMachine(transitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: transitions}
}

// NewProjectStateMachine returns the restoration-project lifecycle.
// verified and rejected are terminal; requires_additional_data re-enters
// the pipeline once new evidence lands.
func NewProjectStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"pending":                  {"active"},
		"active":                   {"verified", "rejected", "requires_additional_data"},
		"requires_additional_data": {"active", "rejected"},
		"verified":                 {},
		"rejected":                 {},
	})
}

// NewVerificationStateMachine returns the verification-record lifecycle.
// requires_additional_data -> in_progress is the only backward edge.
func NewVerificationStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"pending":                  {"in_progress"},
		"in_progress":              {"verified", "rejected", "requires_additional_data"},
		"requires_additional_data": {"in_progress"},
		"verified":                 {},
		"rejected":                 {},
	})
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
