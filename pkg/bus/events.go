package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventMessageReceived       EventType = "message_received"
	EventMessageSent           EventType = "message_sent"
	EventNavigationIntercepted EventType = "navigation_intercepted"
	EventResourceServed        EventType = "resource_served"
	EventResourceFailed        EventType = "resource_failed"
	EventStateChanged          EventType = "state_changed"
	EventPageConnected         EventType = "page_connected"
	EventPageDisconnected      EventType = "page_disconnected"
)

// Event is one observable bridge occurrence. Fields not relevant to the
// event type are left empty.
type Event struct {
	Type    EventType         `json:"type"`
	At      time.Time         `json:"at"`
	URI     string            `json:"uri,omitempty"`
	State   string            `json:"state,omitempty"`
	Status  int               `json:"status,omitempty"`
	Bytes   int               `json:"bytes,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// PublishEvent fans event out to current subscribers. Subscribers whose
// buffer is full miss the event.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	// Sends are non-blocking, so holding the read lock keeps unsubscribe from
	// closing a channel mid-send without stalling anyone.
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

// SubscribeEvents returns a feed that closes when ctx ends, the bus closes or
// unsubscribe is called.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
