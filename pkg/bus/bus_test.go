package bus

import (
	"context"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	in := InboundMessage{Origin: "app://localhost/", Content: `{"op":"click"}`}
	if ok := mb.PublishInbound(context.Background(), in); !ok {
		t.Fatal("expected inbound publish to succeed")
	}

	out, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected inbound consume to succeed")
	}
	if out.Content != in.Content || out.Origin != in.Origin {
		t.Fatalf("message = %+v, want %+v", out, in)
	}
}

func TestOutboundPreservesOrder(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	for _, content := range []string{"one", "two", "three"} {
		if ok := mb.PublishOutbound(context.Background(), OutboundMessage{Content: content, Source: "console"}); !ok {
			t.Fatalf("publish %q failed", content)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		out, ok := mb.ConsumeOutbound(context.Background())
		if !ok {
			t.Fatal("expected outbound consume to succeed")
		}
		if out.Content != want {
			t.Fatalf("content = %q, want %q", out.Content, want)
		}
	}
}

func TestCloseStopsBusOperations(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	if ok := mb.PublishInbound(context.Background(), InboundMessage{Content: "hello"}); ok {
		t.Fatal("expected inbound publish to fail after close")
	}
	if ok := mb.PublishOutbound(context.Background(), OutboundMessage{Content: "hello"}); ok {
		t.Fatal("expected outbound publish to fail after close")
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatal("expected inbound consume to stop after close")
	}
	if _, ok := mb.ConsumeOutbound(context.Background()); ok {
		t.Fatal("expected outbound consume to stop after close")
	}

	select {
	case <-mb.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestContextCancellation(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := mb.PublishInbound(ctx, InboundMessage{Content: "hello"}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("expected consume to fail on canceled context")
	}
}

func TestConsumeUnblocksOnClose(t *testing.T) {
	mb := NewMessageBus()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = mb.ConsumeOutbound(context.Background())
	}()

	mb.Close()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("consume did not unblock after close")
	}
}

func TestEventFanout(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	eventsA, unsubA := mb.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := mb.SubscribeEvents(ctx, 1)
	defer unsubB()

	event := Event{Type: EventResourceServed, URI: "app://localhost/index.html", Status: 200}
	if ok := mb.PublishEvent(ctx, event); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for name, events := range map[string]<-chan Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-events:
			if got.Type != EventResourceServed || got.URI != event.URI {
				t.Fatalf("subscriber %s event = %+v", name, got)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s event has no timestamp", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	events, unsubscribe := mb.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	if ok := mb.PublishEvent(ctx, Event{Type: EventMessageReceived}); !ok {
		t.Fatal("expected first event publish to succeed")
	}

	start := time.Now()
	if ok := mb.PublishEvent(ctx, Event{Type: EventMessageSent}); !ok {
		t.Fatal("expected second event publish to succeed")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}

	select {
	case got := <-events:
		if got.Type != EventMessageReceived {
			t.Fatalf("event type = %q, want %q", got.Type, EventMessageReceived)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one event")
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := mb.SubscribeEvents(ctx, 4)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed subscription, got event")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestSubscribeAfterCloseReturnsClosedFeed(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	events, unsubscribe := mb.SubscribeEvents(context.Background(), 1)
	defer unsubscribe()

	if _, ok := <-events; ok {
		t.Fatal("expected closed feed after bus close")
	}
	if ok := mb.PublishEvent(context.Background(), Event{Type: EventStateChanged}); ok {
		t.Fatal("expected publish to fail after close")
	}
}

func TestTryPublishInboundDoesNotBlockWhenFull(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	for i := range defaultBufferSize {
		if !mb.TryPublishInbound(InboundMessage{Content: string(rune('a' + i%26))}) {
			t.Fatalf("publish %d failed before buffer was full", i)
		}
	}
	if mb.TryPublishInbound(InboundMessage{Content: "overflow"}) {
		t.Fatal("expected publish to fail on full buffer")
	}
}
