// Package server exposes the outdial widget over HTTP: an HTMX page for
// agents plus a small JSON API for the host and for scripting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	types "github.com/sebas/outdial/api/types/v1"
	"github.com/sebas/outdial/internal/outdial/host"
	"github.com/sebas/outdial/internal/outdial/widget"
)

// Emitter delivers host events to the widget's bus.
type Emitter interface {
	Emit(ctx context.Context, event host.ContactEvent) int
}

// Hanger ends a call placed by the widget.
type Hanger interface {
	Hangup(ctx context.Context, interactionID string) error
}

// Config holds the HTTP server configuration.
// Emitter and Hanger are optional; without them their routes return 501.
type Config struct {
	BindAddr string
	Port     int
	Title    string

	Widget  *widget.Widget
	Emitter Emitter
	Hanger  Hanger
}

// Server serves the widget page and API.
type Server struct {
	cfg        Config
	widget     *widget.Widget
	httpServer *http.Server
	templates  *Templates
	startTime  time.Time
}

// NewServer creates a new widget server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Widget == nil {
		return nil, errors.New("server: widget is required")
	}
	if cfg.Title == "" {
		cfg.Title = "Outdial"
	}

	s := &Server{
		cfg:       cfg,
		widget:    cfg.Widget,
		startTime: time.Now(),
	}

	var err error
	s.templates, err = NewTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /partials/widget", s.handleWidgetPartial)
	mux.HandleFunc("GET /partials/log", s.handleLogPartial)

	mux.HandleFunc("POST /api/v1/input", s.handleInput)
	mux.HandleFunc("POST /api/v1/outdial", s.handleOutdial)
	mux.HandleFunc("POST /api/v1/darkmode", s.handleDarkMode)
	mux.HandleFunc("POST /api/v1/host/events", s.handleHostEvent)
	mux.HandleFunc("POST /api/v1/hangup", s.handleHangup)
	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.HandleFunc("GET /api/v1/log", s.handleLog)

	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	slog.Info("[UI] Starting HTTP server", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[UI] Server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("[UI] Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// formatUptime formats a duration for display
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
