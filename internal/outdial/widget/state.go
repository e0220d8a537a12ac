package widget

import (
	"fmt"
	"strings"
)

// State is the widget's single mutable record. It is only changed through
// the Widget's named transitions.
type State struct {
	InteractionID string
	PhoneNumber   string
	APIParameter  string
	HasActiveCall bool
}

// HasPhoneNumber reports whether the trimmed phone number is non-empty.
func (s State) HasPhoneNumber() bool {
	return strings.TrimSpace(s.PhoneNumber) != ""
}

// withCall returns s with an active call bound to interactionID.
func (s State) withCall(interactionID string) State {
	s.HasActiveCall = true
	s.InteractionID = interactionID
	return s
}

// withoutCall returns s with no active call.
func (s State) withoutCall() State {
	s.HasActiveCall = false
	s.InteractionID = ""
	return s
}

// Phase is the lifecycle of a single outdial sequence
type Phase int

const (
	// PhaseIdle means no sequence is in flight
	PhaseIdle Phase = iota
	// PhaseValidating is while the pre-check endpoint is being called
	PhaseValidating
	// PhaseDialing is while the host dialer is placing the call
	PhaseDialing
	// PhaseNotifying is while the post-outdial notification is being sent
	PhaseNotifying
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseValidating:
		return "Validating"
	case PhaseDialing:
		return "Dialing"
	case PhaseNotifying:
		return "Notifying"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// validTransitions defines which phase transitions are allowed.
// Every phase may abort back to Idle.
var validTransitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseValidating},
	PhaseValidating: {PhaseDialing, PhaseIdle},
	PhaseDialing:    {PhaseNotifying, PhaseIdle},
	PhaseNotifying:  {PhaseIdle},
}

// CanTransitionTo checks if a transition from current phase to next phase is valid
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range validTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InFlight returns true while a sequence is running
func (p Phase) InFlight() bool {
	return p != PhaseIdle
}

// Outcome records how the most recent sequence ended
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeSkipped means a precondition stopped the sequence before any call
	OutcomeSkipped
	OutcomeValidationRejected
	OutcomeDialFailed
	OutcomeNotifyFailed
	OutcomeCompleted
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "None"
	case OutcomeSkipped:
		return "Skipped"
	case OutcomeValidationRejected:
		return "ValidationRejected"
	case OutcomeDialFailed:
		return "DialFailed"
	case OutcomeNotifyFailed:
		return "NotifyFailed"
	case OutcomeCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("Unknown(%d)", o)
	}
}

// Snapshot is a read-only copy of everything the widget renders.
type Snapshot struct {
	State
	Enabled     bool
	Phase       Phase
	LastOutcome Outcome
	DarkMode    bool
	Connected   bool
}
