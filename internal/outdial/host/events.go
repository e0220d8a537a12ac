package host

import "fmt"

// EventName is the host's name for an agent contact lifecycle event.
type EventName string

// Agent contact lifecycle events.
//
// Lifecycle:
//   eAgentContact -> eAgentContactEstablished -> (eAgentContactHeld <-> eAgentContactUnHeld)
//     -> eAgentWrapup -> eAgentContactEnded
const (
	EventContact            EventName = "eAgentContact"
	EventContactEnded       EventName = "eAgentContactEnded"
	EventWrapup             EventName = "eAgentWrapup"
	EventContactEstablished EventName = "eAgentContactEstablished"
	EventContactHeld        EventName = "eAgentContactHeld"
	EventContactUnHeld      EventName = "eAgentContactUnHeld"
)

// AllContactEvents lists every lifecycle event the widget observes.
var AllContactEvents = []EventName{
	EventContact,
	EventContactEnded,
	EventWrapup,
	EventContactEstablished,
	EventContactHeld,
	EventContactUnHeld,
}

// ParseEventName validates a name received from outside the process.
func ParseEventName(s string) (EventName, error) {
	for _, name := range AllContactEvents {
		if string(name) == s {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown contact event %q", s)
}
