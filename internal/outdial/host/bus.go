package host

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type subscription struct {
	id      SubscriptionID
	name    EventName
	handler Handler
}

// Bus is an in-process EventBus. Emit delivers one event at a time to the
// handlers subscribed to its name, in subscription order, on the caller's
// goroutine. Handlers must not call Emit.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription

	// deliverMu serializes deliveries so handlers never run concurrently
	deliverMu sync.Mutex
	logger    *slog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers handler for events named name.
func (b *Bus) Subscribe(name EventName, handler Handler) SubscriptionID {
	id := SubscriptionID("sub-" + uuid.New().String())

	b.mu.Lock()
	b.subs = append(b.subs, &subscription{id: id, name: name, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("[Bus] Subscription added", "id", id, "event", name)
	return id
}

// Unsubscribe removes a single subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes every subscription.
func (b *Bus) UnsubscribeAll() {
	b.mu.Lock()
	n := len(b.subs)
	b.subs = nil
	b.mu.Unlock()
	b.logger.Debug("[Bus] All subscriptions removed", "count", n)
}

// Emit delivers event to matching subscribers and returns how many received it.
func (b *Bus) Emit(ctx context.Context, event ContactEvent) int {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == event.Name {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		s.handler(ctx, event)
	}

	b.logger.Debug("[Bus] Event delivered",
		"event", event.Name,
		"interaction_id", event.Data.InteractionID,
		"subscribers", len(matched),
	)
	return len(matched)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
