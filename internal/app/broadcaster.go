package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Event is one broadcast step delivered to a session's subscribers.
type Event struct {
	SessionID uuid.UUID      `json:"session_id"`
	Name      string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Broadcaster fans a session's pipeline events out to any number of
// subscribers (WebSocket stream handlers), satisfying both
// pipeline.Broadcaster and hooks.Broadcaster. Grounded in the
// teacher's internal/gateway.StreamingRegistry, simplified from its
// multi-channel fan-out down to one per-session channel set.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Broadcast publishes one event to sessionID's current subscribers,
// dropping it for any subscriber whose buffer is full rather than
// blocking the pipeline on a slow reader.
func (b *Broadcaster) Broadcast(_ context.Context, sessionID uuid.UUID, event string, payload map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- Event{SessionID: sessionID, Name: event, Payload: payload}:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel for sessionID, returning
// it and an unsubscribe func the caller must run when done.
func (b *Broadcaster) Subscribe(sessionID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs[sessionID], ch)
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}
