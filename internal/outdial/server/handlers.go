package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	types "github.com/sebas/outdial/api/types/v1"
	"github.com/sebas/outdial/internal/outdial/activity"
	"github.com/sebas/outdial/internal/outdial/host"
	"github.com/sebas/outdial/internal/outdial/widget"
)

// handleHealth returns the health status of the widget server
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:    "ok",
		Uptime:    int64(time.Since(s.startTime).Seconds()),
		Connected: s.widget.Snapshot().Connected,
	})
}

// handlePage renders the full widget page
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "page", s.templates.RenderPage)
}

// handleWidgetPartial renders the form and action button for HTMX
func (s *Server) handleWidgetPartial(w http.ResponseWriter, r *http.Request) {
	s.render(w, "widget partial", s.templates.RenderWidget)
}

// handleLogPartial renders the activity log for HTMX
func (s *Server) handleLogPartial(w http.ResponseWriter, r *http.Request) {
	s.render(w, "log partial", s.templates.RenderLog)
}

func (s *Server) render(w http.ResponseWriter, what string, fn func(io.Writer, TemplateData) error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := fn(w, s.buildTemplateData()); err != nil {
		slog.Error("[UI] Failed to render "+what, "error", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// handleInput records the phone number and API parameter fields.
// Accepts a form post from HTMX or a JSON body.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var in types.InputRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
			return
		}
		in.PhoneNumber = r.PostForm.Get("phoneNumber")
		in.APIParameter = r.PostForm.Get("apiParameter")
	}

	s.widget.SetPhoneNumber(in.PhoneNumber)
	s.widget.SetAPIParameter(in.APIParameter)
	s.handleWidgetPartial(w, r)
}

// handleOutdial runs one outdial sequence to completion.
func (s *Server) handleOutdial(w http.ResponseWriter, r *http.Request) {
	// an agent closing the tab must not cancel a call already being placed
	ctx := context.WithoutCancel(r.Context())

	resp, err := s.widget.Outdial(ctx)
	outcome := s.widget.Snapshot().LastOutcome

	if r.Header.Get("HX-Request") == "true" {
		s.handleWidgetPartial(w, r)
		return
	}

	result := types.OutdialResult{
		Outcome:  outcome.String(),
		Response: toAPIResponse(resp),
	}
	var notifyErr *widget.NotifyError
	switch {
	case errors.As(err, &notifyErr):
		result.Status = types.OutdialStatusNotifyFailed
		result.Error = notifyErr.Error()
		writeJSON(w, http.StatusBadGateway, result)
	case err != nil:
		result.Status = types.OutdialStatusAborted
		result.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, result)
	case resp == nil:
		result.Status = types.OutdialStatusAborted
		writeJSON(w, http.StatusAccepted, result)
	default:
		result.Status = types.OutdialStatusCompleted
		writeJSON(w, http.StatusOK, result)
	}
}

// handleDarkMode toggles the cosmetic dark mode.
func (s *Server) handleDarkMode(w http.ResponseWriter, r *http.Request) {
	var req types.DarkModeRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
			return
		}
		req.Enabled = r.PostForm.Get("enabled") == "true" || r.PostForm.Get("enabled") == "on"
	}
	s.widget.SetDarkMode(req.Enabled)
	s.handleState(w, r)
}

// handleHostEvent accepts a contact event pushed by the host.
func (s *Server) handleHostEvent(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Emitter == nil {
		writeError(w, http.StatusNotImplemented, "host events not accepted")
		return
	}

	var ev types.HostEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	name, err := host.ParseEventName(ev.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n := s.cfg.Emitter.Emit(r.Context(), host.ContactEvent{
		Name: name,
		Data: host.EventData{InteractionID: ev.Data.InteractionID},
	})
	slog.Debug("[UI] Host event accepted", "event", name, "delivered", n)
	writeJSON(w, http.StatusOK, types.HostEventResponse{Delivered: n})
}

// handleHangup ends a call placed by the widget.
func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hanger == nil {
		writeError(w, http.StatusNotImplemented, "hangup not supported by this host")
		return
	}

	var req types.HangupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.InteractionID == "" {
		req.InteractionID = s.widget.State().InteractionID
	}
	if req.InteractionID == "" {
		writeError(w, http.StatusConflict, "no active call")
		return
	}

	if err := s.cfg.Hanger.Hangup(r.Context(), req.InteractionID); err != nil {
		slog.Error("[UI] Hangup failed", "interaction_id", req.InteractionID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleState returns the widget snapshot as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(s.widget.Snapshot()))
}

// handleLog returns activity log entries, optionally only those after ?since=seq.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	log := s.widget.Log()

	var entries []activity.Entry
	if since := r.URL.Query().Get("since"); since != "" {
		var seq uint64
		if _, err := fmt.Sscanf(since, "%d", &seq); err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		entries = log.Since(seq)
	} else {
		entries = log.Entries()
	}

	out := types.LogResponse{Entries: make([]types.LogEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, types.LogEntry{
			Seq:      e.Seq,
			Time:     e.Time.Format(time.RFC3339),
			Severity: e.Severity.String(),
			Message:  e.Message,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func toAPIResponse(resp *host.OutdialResponse) *types.OutdialResponse {
	if resp == nil {
		return nil
	}
	return &types.OutdialResponse{
		InteractionID: resp.InteractionID,
		StatusCode:    resp.StatusCode,
		Reason:        resp.Reason,
		Details:       resp.Details,
	}
}

func toStateResponse(snap widget.Snapshot) types.StateResponse {
	return types.StateResponse{
		InteractionID: snap.InteractionID,
		PhoneNumber:   snap.PhoneNumber,
		APIParameter:  snap.APIParameter,
		HasActiveCall: snap.HasActiveCall,
		Enabled:       snap.Enabled,
		Phase:         snap.Phase.String(),
		LastOutcome:   snap.LastOutcome.String(),
		DarkMode:      snap.DarkMode,
		Connected:     snap.Connected,
	}
}

// buildTemplateData collects everything the widget templates render
func (s *Server) buildTemplateData() TemplateData {
	snap := s.widget.Snapshot()
	entries := s.widget.Log().Entries()

	data := TemplateData{
		Title:    s.cfg.Title,
		Snapshot: snap,
		Uptime:   formatUptime(time.Since(s.startTime)),
		Log:      make([]LogData, 0, len(entries)),
	}
	// newest first
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		data.Log = append(data.Log, LogData{
			Time:     e.Time.Format("15:04:05"),
			Severity: e.Severity.String(),
			Message:  e.Message,
		})
	}
	return data
}
