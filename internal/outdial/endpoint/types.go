// Package endpoint implements the HTTP clients for the pre-outdial
// validation endpoint and the post-outdial notification endpoint.
package endpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/sebas/outdial/internal/outdial/host"
)

// ErrCircuitOpen is returned when recent failures have tripped the breaker.
var ErrCircuitOpen = errors.New("circuit open")

// StatusInitiated is the notification status sent after a successful dial.
const StatusInitiated = "initiated"

// ValidationRequest is the body posted to the validation endpoint.
type ValidationRequest struct {
	PhoneNumber  string    `json:"phoneNumber"`
	APIParameter string    `json:"apiParameter"`
	AgentID      string    `json:"agentId"`
	Timestamp    time.Time `json:"timestamp"`
}

// validationResponse accepts either field name; allowed wins over success.
type validationResponse struct {
	Allowed *bool  `json:"allowed"`
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// Verdict is the interpreted validation result.
type Verdict struct {
	Allowed bool   `json:"success"`
	Message string `json:"message"`
}

func (r validationResponse) verdict() Verdict {
	v := Verdict{Allowed: true, Message: r.Message}
	switch {
	case r.Allowed != nil:
		v.Allowed = *r.Allowed
	case r.Success != nil:
		v.Allowed = *r.Success
	}
	if v.Message == "" {
		if v.Allowed {
			v.Message = "Validation successful"
		} else {
			v.Message = "Validation denied"
		}
	}
	return v
}

// NotificationRequest is the body posted to the notification endpoint.
type NotificationRequest struct {
	PhoneNumber   string                `json:"phoneNumber"`
	APIParameter  string                `json:"apiParameter"`
	AgentID       string                `json:"agentId"`
	OutdialResult *host.OutdialResponse `json:"outdialResult"`
	Timestamp     time.Time             `json:"timestamp"`
	Status        string                `json:"status"`
}

// TransportError indicates an endpoint could not be reached or answered
// with a non-success status.
type TransportError struct {
	// Endpoint names the collaborator, e.g. "validation".
	Endpoint string

	// StatusCode is the HTTP status (0 if the request never completed).
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Endpoint, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}
