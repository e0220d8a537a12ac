package widget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sebas/outdial/internal/outdial/host"
)

// diagnosticEvents are observed for logging only and never change state.
// eAgentContact and eAgentContactEnded additionally have stateful handlers;
// wrap-up, established, held and unheld deliberately do not.
var diagnosticEvents = host.AllContactEvents

// subscribe registers the stateful handlers first, then the log-only ones.
func (w *Widget) subscribe() {
	w.host.Subscribe(host.EventContact, w.onContactStarted)
	w.host.Subscribe(host.EventContactEnded, w.onContactEnded)
	for _, name := range diagnosticEvents {
		w.host.Subscribe(name, w.onDiagnosticEvent)
	}
}

// onContactStarted moves the tracker to OnCall.
func (w *Widget) onContactStarted(_ context.Context, event host.ContactEvent) {
	id := event.Data.InteractionID
	if id == "" {
		w.log.Error("Agent contact event without interaction id ignored")
		return
	}

	w.log.Info("Agent contact event received")

	w.mu.Lock()
	w.generation++
	w.state = w.state.withCall(id)
	w.recomputeLocked()
	w.mu.Unlock()
}

// onContactEnded moves the tracker back to Idle.
func (w *Widget) onContactEnded(_ context.Context, event host.ContactEvent) {
	w.log.Info("Call ended")

	w.mu.Lock()
	w.generation++
	w.state = w.state.withoutCall()
	w.recomputeLocked()
	w.mu.Unlock()
}

func (w *Widget) onDiagnosticEvent(_ context.Context, event host.ContactEvent) {
	slog.Info("[Tracker] Event received",
		"event", event.Name,
		"interaction_id", event.Data.InteractionID,
	)
}

// Reconcile adopts an active call from the host's task map. Keys are
// visited in sorted order and the first task carrying an interaction id
// wins. On failure the widget falls back to no active call.
func (w *Widget) Reconcile(ctx context.Context) error {
	w.mu.Lock()
	gen := w.generation
	timeout := w.opts.ReconcileTimeout
	w.mu.Unlock()

	qctx, cancel := context.WithTimeout(ctx, timeout)
	tasks, err := w.host.TaskMap(qctx)
	cancel()

	if err != nil {
		w.log.Error(fmt.Sprintf("Error checking active tasks: %v", err))
		w.mu.Lock()
		if w.generation == gen {
			w.state = w.state.withoutCall()
			w.recomputeLocked()
		}
		w.mu.Unlock()
		return fmt.Errorf("query task map: %w", err)
	}

	id, candidates := firstInteraction(tasks)
	if candidates > 1 {
		slog.Warn("[Tracker] Multiple active tasks at startup, adopting first by key",
			"candidates", candidates,
			"interaction_id", id,
		)
	}

	w.mu.Lock()
	if w.generation != gen {
		w.mu.Unlock()
		slog.Debug("[Tracker] Contact event arrived during reconcile, keeping event state")
		return nil
	}
	if id != "" {
		w.state = w.state.withCall(id)
	}
	w.recomputeLocked()
	w.mu.Unlock()

	if id != "" {
		w.log.Info(fmt.Sprintf("Active call detected: %s", id))
	}
	return nil
}

// firstInteraction returns the interaction id of the first task, by key,
// that has one, and how many tasks had one.
func firstInteraction(tasks map[string]host.Task) (string, int) {
	keys := make([]string, 0, len(tasks))
	for k := range tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var first string
	candidates := 0
	for _, k := range keys {
		if id := tasks[k].InteractionID; id != "" {
			if candidates == 0 {
				first = id
			}
			candidates++
		}
	}
	return first, candidates
}
