// Package bus decouples the bridge from its observers: message queues in
// both directions plus a non-blocking event feed.
package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:          make(chan InboundMessage, defaultBufferSize),
		outbound:         make(chan OutboundMessage, defaultBufferSize),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishInbound queues a script message for host-side consumers.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	return send(ctx, mb.done, mb.inbound, msg)
}

// TryPublishInbound queues msg only if there is buffer space. Callers on the
// UI loop use it so a stalled consumer cannot block the loop.
func (mb *MessageBus) TryPublishInbound(msg InboundMessage) bool {
	select {
	case <-mb.done:
		return false
	default:
	}

	select {
	case mb.inbound <- msg:
		return true
	default:
		return false
	}
}

// ConsumeInbound blocks until a script message is available.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return receive(ctx, mb.done, mb.inbound)
}

// PublishOutbound queues a message for delivery to script.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	return send(ctx, mb.done, mb.outbound, msg)
}

// ConsumeOutbound blocks until a message for script is available.
func (mb *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return receive(ctx, mb.done, mb.outbound)
}

// Done is closed when the bus is closed.
func (mb *MessageBus) Done() <-chan struct{} {
	return mb.done
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}

func send[T any](ctx context.Context, done <-chan struct{}, ch chan<- T, msg T) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	// A closed bus or context wins over free buffer space.
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case ch <- msg:
		return true
	}
}

func receive[T any](ctx context.Context, done <-chan struct{}, ch <-chan T) (T, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	var zero T
	select {
	case <-ctx.Done():
		return zero, false
	case <-done:
		return zero, false
	case msg := <-ch:
		return msg, true
	}
}
