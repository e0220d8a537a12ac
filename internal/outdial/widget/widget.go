// Package widget implements the outdial widget core: the call-state tracker
// and the validate → dial → notify sequencer, sharing one state record.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sebas/outdial/internal/outdial/activity"
	"github.com/sebas/outdial/internal/outdial/endpoint"
	"github.com/sebas/outdial/internal/outdial/host"
)

// FailurePolicy decides how a validation transport failure is treated.
type FailurePolicy string

const (
	// FailOpen lets the outdial proceed when validation cannot be reached.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed stops the outdial when validation cannot be reached.
	FailClosed FailurePolicy = "fail_closed"
)

// ParseFailurePolicy accepts fail_open/fail_closed in any case, with - or _.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "fail_open", "open":
		return FailOpen, nil
	case "fail_closed", "closed", "":
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Default step timeouts.
const (
	DefaultValidateTimeout  = 5 * time.Second
	DefaultDialTimeout      = 30 * time.Second
	DefaultNotifyTimeout    = 5 * time.Second
	DefaultReconcileTimeout = 5 * time.Second
)

// Options configures a Widget.
type Options struct {
	AgentID      string
	EntryPointID string
	OriginNumber string

	FailurePolicy FailurePolicy

	// GateOnActiveCall disables the action while a call is active.
	GateOnActiveCall bool

	ValidateTimeout  time.Duration
	DialTimeout      time.Duration
	NotifyTimeout    time.Duration
	ReconcileTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.FailurePolicy == "" {
		o.FailurePolicy = FailClosed
	}
	if o.ValidateTimeout <= 0 {
		o.ValidateTimeout = DefaultValidateTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = DefaultNotifyTimeout
	}
	if o.ReconcileTimeout <= 0 {
		o.ReconcileTimeout = DefaultReconcileTimeout
	}
	return o
}

// Validator is the pre-outdial check.
type Validator interface {
	Validate(ctx context.Context, req endpoint.ValidationRequest) (endpoint.Verdict, error)
}

// Notifier is the post-outdial notification.
type Notifier interface {
	Notify(ctx context.Context, req endpoint.NotificationRequest) (json.RawMessage, error)
}

// Widget owns the state record and serializes every transition on it.
type Widget struct {
	mu          sync.Mutex
	state       State
	enabled     bool
	phase       Phase
	lastOutcome Outcome
	darkMode    bool
	connected   bool

	// generation counts tracker events so a slow reconcile never
	// overwrites state set by an event that arrived in the meantime
	generation uint64

	opts      Options
	host      host.Host
	validator Validator
	notifier  Notifier
	log       *activity.Log
	now       func() time.Time
}

// Config holds a Widget's collaborators.
// Validator and Notifier may be nil, in which case their step is skipped.
type Config struct {
	Options   Options
	Host      host.Host
	Validator Validator
	Notifier  Notifier
	Log       *activity.Log
}

// New creates a widget in its initial state. Call Connect to start tracking.
func New(cfg Config) *Widget {
	log := cfg.Log
	if log == nil {
		log = activity.NewLog(activity.DefaultCapacity)
	}
	return &Widget{
		opts:      cfg.Options.withDefaults(),
		host:      cfg.Host,
		validator: cfg.Validator,
		notifier:  cfg.Notifier,
		log:       log,
		now:       time.Now,
	}
}

// Log returns the widget's activity log.
func (w *Widget) Log() *activity.Log {
	return w.log
}

// Options returns the options in effect.
func (w *Widget) Options() Options {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opts
}

// UpdateOptions swaps the options used by the next sequence.
// A sequence already in flight keeps the options it started with.
func (w *Widget) UpdateOptions(opts Options) {
	w.mu.Lock()
	w.opts = opts.withDefaults()
	w.recomputeLocked()
	w.mu.Unlock()
	slog.Info("[Widget] Options updated",
		"failure_policy", opts.FailurePolicy,
		"gate_on_active_call", opts.GateOnActiveCall,
		"entry_point", opts.EntryPointID,
	)
}

// SetEndpoints swaps the validation and notification collaborators.
// Either may be nil to skip its step.
func (w *Widget) SetEndpoints(v Validator, n Notifier) {
	w.mu.Lock()
	w.validator = v
	w.notifier = n
	w.mu.Unlock()
}

// Connect subscribes to host events and reconciles with the host's tasks.
// A failed reconcile is logged and leaves the widget with no active call.
func (w *Widget) Connect(ctx context.Context) {
	w.mu.Lock()
	if w.connected {
		w.mu.Unlock()
		return
	}
	w.connected = true
	w.mu.Unlock()

	w.log.Info("Widget initialized. Waiting for active call...")
	w.subscribe()
	_ = w.Reconcile(ctx)
}

// Disconnect removes every subscription from the host bus.
func (w *Widget) Disconnect() {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return
	}
	w.connected = false
	w.mu.Unlock()

	w.host.UnsubscribeAll()
	slog.Info("[Widget] Disconnected from host events")
}

// SetPhoneNumber records user input and recomputes enablement.
func (w *Widget) SetPhoneNumber(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.PhoneNumber = s
	w.recomputeLocked()
}

// SetAPIParameter records the auxiliary parameter. It is never validated.
func (w *Widget) SetAPIParameter(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.APIParameter = s
}

// SetDarkMode toggles the cosmetic dark-mode attribute.
func (w *Widget) SetDarkMode(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.darkMode = on
}

// Enabled reports whether the outdial action is available.
func (w *Widget) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// State returns a copy of the state record.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns everything needed to render the widget.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		State:       w.state,
		Enabled:     w.enabled,
		Phase:       w.phase,
		LastOutcome: w.lastOutcome,
		DarkMode:    w.darkMode,
		Connected:   w.connected,
	}
}

// recomputeLocked derives enablement from the state. Caller holds w.mu.
func (w *Widget) recomputeLocked() {
	enabled := w.state.HasPhoneNumber()
	if w.opts.GateOnActiveCall && w.state.HasActiveCall {
		enabled = false
	}
	if enabled != w.enabled {
		slog.Debug("[Widget] Outdial action toggled", "enabled", enabled)
	}
	w.enabled = enabled
}

// setPhaseLocked moves the sequencer phase. Caller holds w.mu.
func (w *Widget) setPhaseLocked(next Phase) {
	if !w.phase.CanTransitionTo(next) {
		slog.Warn("[Widget] Invalid phase transition", "from", w.phase, "to", next)
	}
	w.phase = next
}
