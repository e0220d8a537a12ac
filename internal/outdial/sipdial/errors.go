package sipdial

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProxy is returned by New when no outbound proxy is configured.
	ErrNoProxy = errors.New("sip proxy not configured")
	// ErrNoResponse is returned when the INVITE transaction ends without a final response.
	ErrNoResponse = errors.New("no final response received")
	// ErrUnknownCall is returned by Hangup for a call the dialer does not track.
	ErrUnknownCall = errors.New("unknown call")
)

// StatusError is a final non-2xx response to the INVITE.
type StatusError struct {
	Code   int
	Reason string
	CallID string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sip %d %s", e.Code, e.Reason)
}

// Temporary reports whether the failure may clear on retry (busy, timeout, 5xx).
func (e *StatusError) Temporary() bool {
	switch {
	case e.Code == 408, e.Code == 480, e.Code == 486, e.Code == 487:
		return true
	case e.Code >= 500 && e.Code < 600:
		return true
	}
	return false
}
