// Package hub fans out data-change notifications to independent consumers.
//
// Subscribers are identified by name and called synchronously, in
// subscription order, on every publish. A panicking subscriber is
// contained and logged; the remaining subscribers are still delivered to.
// An optional external channel forwards events across process boundaries;
// its failures degrade to a log line and never affect local delivery.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedtrack/internal/logging"
)

// Event describes one completed data update.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	FromCache bool      `json:"fromCache"`
}

// Subscriber receives events. It must not block for long; delivery is
// synchronous on the publisher's goroutine.
type Subscriber func(Event)

// External is a cross-process notification channel. Implementations log
// their own failures; Publish never returns an error to the hub.
type External interface {
	Publish(Event)
	Close()
}

type subscription struct {
	name string
	fn   Subscriber
}

// Hub is the in-process notification fan-out.
type Hub struct {
	mu       sync.Mutex
	subs     []subscription
	external External
	logger   *slog.Logger
}

// New creates a Hub. external may be nil when no cross-process channel is
// configured.
func New(external External, logger *slog.Logger) *Hub {
	logger = logging.Default(logger)
	return &Hub{
		external: external,
		logger:   logger.With("component", "hub"),
	}
}

// Subscribe registers fn under name. Registering a name twice is a no-op;
// the original subscriber stays in place.
func (h *Hub) Subscribe(name string, fn Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.subs {
		if s.name == name {
			h.logger.Debug("subscriber already registered", "name", name)
			return
		}
	}
	h.subs = append(h.subs, subscription{name: name, fn: fn})
	h.logger.Debug("subscriber registered", "name", name)
}

// Unsubscribe removes the named subscriber. Unknown names are a no-op.
func (h *Hub) Unsubscribe(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s.name == name {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			h.logger.Debug("subscriber removed", "name", name)
			return
		}
	}
}

// Publish delivers the event to every subscriber in subscription order,
// then forwards it to the external channel if one is configured.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	external := h.external
	h.mu.Unlock()

	for _, s := range subs {
		h.deliver(s, ev)
	}
	if external != nil {
		external.Publish(ev)
	}
}

// deliver invokes one subscriber, containing panics so a broken consumer
// cannot starve the others.
func (h *Hub) deliver(s subscription, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("subscriber panicked", "name", s.name, "panic", rec)
		}
	}()
	s.fn(ev)
}

// Subscribers returns the registered names in subscription order.
func (h *Hub) Subscribers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, len(h.subs))
	for i, s := range h.subs {
		names[i] = s.name
	}
	return names
}

// Close shuts down the external channel if one is configured.
func (h *Hub) Close() {
	h.mu.Lock()
	external := h.external
	h.external = nil
	h.mu.Unlock()

	if external != nil {
		external.Close()
	}
}

// NewEvent builds an event for a collection of the given size.
func NewEvent(count int, fromCache bool) Event {
	return Event{
		ID:        uuid.New(),
		Count:     count,
		Timestamp: time.Now().UTC(),
		FromCache: fromCache,
	}
}
