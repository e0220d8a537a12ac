package host

import (
	"context"
	"log/slog"
	"sync"
)

// Local is an in-process Host. It keeps a task registry in step with the
// contact events it emits and delegates dialing to a pluggable Dialer.
type Local struct {
	*Bus

	mu     sync.RWMutex
	tasks  map[string]Task
	dialer Dialer
	logger *slog.Logger
}

// NewLocal creates a Local host. dialer may be nil, in which case
// StartOutdial fails with ErrDialerUnavailable.
func NewLocal(dialer Dialer, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		Bus:    NewBus(logger),
		tasks:  make(map[string]Task),
		dialer: dialer,
		logger: logger,
	}
}

// Emit updates the task registry and then delivers event to subscribers.
func (l *Local) Emit(ctx context.Context, event ContactEvent) int {
	if id := event.Data.InteractionID; id != "" {
		l.mu.Lock()
		switch event.Name {
		case EventContact:
			l.tasks[id] = Task{InteractionID: id, MediaType: MediaTypeTelephony, State: "connected"}
		case EventContactHeld:
			if t, ok := l.tasks[id]; ok {
				t.State = "held"
				l.tasks[id] = t
			}
		case EventContactUnHeld, EventContactEstablished:
			if t, ok := l.tasks[id]; ok {
				t.State = "connected"
				l.tasks[id] = t
			}
		case EventWrapup:
			if t, ok := l.tasks[id]; ok {
				t.State = "wrapup"
				l.tasks[id] = t
			}
		case EventContactEnded:
			delete(l.tasks, id)
		}
		l.mu.Unlock()
	}
	return l.Bus.Emit(ctx, event)
}

// PutTask records a task directly, e.g. one that existed before the widget started.
func (l *Local) PutTask(key string, task Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks[key] = task
}

// TaskMap implements TaskQuery.
func (l *Local) TaskMap(ctx context.Context) (map[string]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Task, len(l.tasks))
	for k, v := range l.tasks {
		out[k] = v
	}
	return out, nil
}

// SetDialer swaps the dialer used by StartOutdial.
func (l *Local) SetDialer(d Dialer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dialer = d
}

// StartOutdial implements Dialer.
func (l *Local) StartOutdial(ctx context.Context, req OutdialRequest) (*OutdialResponse, error) {
	l.mu.RLock()
	d := l.dialer
	l.mu.RUnlock()
	if d == nil {
		return nil, ErrDialerUnavailable
	}
	l.logger.Debug("[Host] Starting outdial", "destination", req.Destination, "entry_point", req.EntryPointID)
	return d.StartOutdial(ctx, req)
}
