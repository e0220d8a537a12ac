// Package host defines the boundary between the widget and the desktop host:
// the lifecycle event bus, the task query and the dialer action.
package host

import (
	"context"
	"errors"
)

// ErrDialerUnavailable is returned when no dialer is configured for the host.
var ErrDialerUnavailable = errors.New("dialer unavailable")

// EventData is the payload carried by contact lifecycle events.
type EventData struct {
	InteractionID string `json:"interactionId"`
}

// ContactEvent is a host-pushed agent contact lifecycle event.
type ContactEvent struct {
	Name EventName `json:"name"`
	Data EventData `json:"data"`
}

// Handler receives events delivered by an EventBus.
type Handler func(ctx context.Context, event ContactEvent)

// SubscriptionID identifies a registered handler.
type SubscriptionID string

// EventBus delivers named lifecycle events to subscribers.
type EventBus interface {
	Subscribe(name EventName, handler Handler) SubscriptionID
	Unsubscribe(id SubscriptionID)
	UnsubscribeAll()
}

// Task is an in-progress host task. InteractionID is empty when the task
// is not bound to an interaction.
type Task struct {
	InteractionID string `json:"interactionId,omitempty"`
	MediaType     string `json:"mediaType,omitempty"`
	State         string `json:"state,omitempty"`
}

// TaskQuery returns the tasks the host currently tracks, keyed by task id.
type TaskQuery interface {
	TaskMap(ctx context.Context) (map[string]Task, error)
}

// Direction of an outdial request.
const DirectionOutbound = "OUTBOUND"

// Media and outbound types used by outdial requests.
const (
	MediaTypeTelephony  = "telephony"
	OutboundTypeOutdial = "OUTDIAL"
)

// OutdialRequest is the structured request passed to the host dialer.
type OutdialRequest struct {
	Destination  string            `json:"destination"`
	EntryPointID string            `json:"entryPointId"`
	Direction    string            `json:"direction"`
	Origin       string            `json:"origin"`
	Attributes   map[string]string `json:"attributes"`
	MediaType    string            `json:"mediaType"`
	OutboundType string            `json:"outboundType"`
}

// NewOutdialRequest builds the fixed-shape request for destination.
func NewOutdialRequest(destination, entryPointID, origin string) OutdialRequest {
	return OutdialRequest{
		Destination:  destination,
		EntryPointID: entryPointID,
		Direction:    DirectionOutbound,
		Origin:       origin,
		Attributes:   map[string]string{},
		MediaType:    MediaTypeTelephony,
		OutboundType: OutboundTypeOutdial,
	}
}

// OutdialResponse is what the dialer reports for an accepted outdial.
type OutdialResponse struct {
	InteractionID string            `json:"interactionId,omitempty"`
	StatusCode    int               `json:"statusCode,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// Dialer places outbound calls on behalf of the agent.
type Dialer interface {
	StartOutdial(ctx context.Context, req OutdialRequest) (*OutdialResponse, error)
}

// Host is everything the widget needs from the desktop.
type Host interface {
	EventBus
	TaskQuery
	Dialer
}
