package models

import (
	"fmt"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[RunState]map[RunState]bool{
	RunStateCreated: {
		RunStateRunning: true, // Created → Running (preparation succeeded)
		RunStateFailed:  true, // Created → Failed (preparation failed)
	},
	RunStateRunning: {
		RunStateFinished: true, // Running → Finished (engine returned normally)
		RunStateFailed:   true, // Running → Failed (engine raised)
	},
	// Terminal states (no transitions allowed)
	RunStateFinished: {},
	RunStateFailed:   {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to RunState) error {
	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	if !allowedStates[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}

	return nil
}

// IsTerminalState returns true if the state is terminal (no further transitions)
func IsTerminalState(state RunState) bool {
	return state == RunStateFinished || state == RunStateFailed
}
