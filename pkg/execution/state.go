package execution

import "fmt"

// State is the controller's lifecycle position. Debugging splits into
// sub-states so step and resume cannot race each other.
type State string

const (
	StateIdle      State = "idle"
	StateExecuting State = "executing"

	StateDebugAwaitingStep State = "debug_awaiting_step"
	StateDebugStepping     State = "debug_stepping"
	StateDebugResuming     State = "debug_resuming"

	StateCompleted State = "completed"
	StateErrored   State = "errored"
	StateCancelled State = "cancelled"
)

// transitions is the allowed-successor table. Terminal states always
// return to idle.
var transitions = map[State][]State{
	StateIdle:      {StateExecuting},
	StateExecuting: {StateDebugAwaitingStep, StateCompleted, StateErrored, StateCancelled},

	StateDebugAwaitingStep: {StateDebugStepping, StateDebugResuming, StateErrored, StateCancelled},
	StateDebugStepping:     {StateDebugAwaitingStep, StateCompleted, StateErrored, StateCancelled},
	StateDebugResuming:     {StateDebugAwaitingStep, StateCompleted, StateErrored, StateCancelled},

	StateCompleted: {StateIdle},
	StateErrored:   {StateIdle},
	StateCancelled: {StateIdle},
}

// IsTerminal reports whether the state ends a run.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

// IsDebugging reports whether a debug session is open.
func (s State) IsDebugging() bool {
	return s == StateDebugAwaitingStep || s == StateDebugStepping || s == StateDebugResuming
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

func invalidTransition(from, to State) error {
	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}
