// Package types defines the JSON types of the outdial widget HTTP API.
package types

// HealthResponse is the response from /health
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    int64  `json:"uptime"`
	Connected bool   `json:"connected"`
}

// InputRequest is the body of POST /api/v1/input
type InputRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	APIParameter string `json:"apiParameter"`
}

// DarkModeRequest is the body of POST /api/v1/darkmode
type DarkModeRequest struct {
	Enabled bool `json:"enabled"`
}

// HostEvent is the body of POST /api/v1/host/events
type HostEvent struct {
	Name string        `json:"name"`
	Data HostEventData `json:"data"`
}

// HostEventData carries the interaction the event refers to
type HostEventData struct {
	InteractionID string `json:"interactionId"`
}

// HostEventResponse reports how many handlers saw the event
type HostEventResponse struct {
	Delivered int `json:"delivered"`
}

// HangupRequest is the body of POST /api/v1/hangup
type HangupRequest struct {
	InteractionID string `json:"interactionId"`
}

// Outdial sequence statuses
const (
	OutdialStatusCompleted    = "completed"
	OutdialStatusAborted      = "aborted"
	OutdialStatusNotifyFailed = "notify_failed"
)

// OutdialResult is the response from POST /api/v1/outdial
type OutdialResult struct {
	Status   string           `json:"status"`
	Outcome  string           `json:"outcome"`
	Response *OutdialResponse `json:"response,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// OutdialResponse is the host's answer to a dial request
type OutdialResponse struct {
	InteractionID string            `json:"interactionId"`
	StatusCode    int               `json:"statusCode,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// StateResponse is the response from /api/v1/state
type StateResponse struct {
	InteractionID string `json:"interactionId"`
	PhoneNumber   string `json:"phoneNumber"`
	APIParameter  string `json:"apiParameter"`
	HasActiveCall bool   `json:"hasActiveCall"`
	Enabled       bool   `json:"enabled"`
	Phase         string `json:"phase"`
	LastOutcome   string `json:"lastOutcome"`
	DarkMode      bool   `json:"darkMode"`
	Connected     bool   `json:"connected"`
}

// LogEntry is one activity log line
type LogEntry struct {
	Seq      uint64 `json:"seq"`
	Time     string `json:"time"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// LogResponse is the response from /api/v1/log
type LogResponse struct {
	Entries []LogEntry `json:"entries"`
}

// ErrorResponse is returned with 4xx/5xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}
