package widget

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrNoPhoneNumber indicates the action was triggered without a destination.
	ErrNoPhoneNumber = errors.New("no phone number entered")

	// ErrInProgress indicates a sequence is already running for this widget.
	ErrInProgress = errors.New("outdial already in progress")

	// ErrActiveCall indicates gating is on and the agent is already on a call.
	ErrActiveCall = errors.New("call already active")

	// ErrValidationRejected indicates the pre-check endpoint denied the outdial.
	ErrValidationRejected = errors.New("validation rejected")
)

// DialError indicates the host refused or failed to place the call.
type DialError struct {
	Destination string
	Cause       error
}

// Error returns the error message.
func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %v", e.Destination, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	return e.Cause
}

// NotifyError indicates the post-outdial notification failed after the call
// was already placed.
type NotifyError struct {
	InteractionID string
	Cause         error
}

// Error returns the error message.
func (e *NotifyError) Error() string {
	if e.InteractionID != "" {
		return fmt.Sprintf("notify outdial %s: %v", e.InteractionID, e.Cause)
	}
	return fmt.Sprintf("notify outdial: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *NotifyError) Unwrap() error {
	return e.Cause
}
