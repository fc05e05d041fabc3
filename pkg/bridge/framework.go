package bridge

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"hostbridge/pkg/bus"
	"hostbridge/pkg/logger"
)

// Mount records one root component placed into the document.
type Mount struct {
	Component string
	Selector  string
}

// BusFramework is a Framework that relays messages through a MessageBus:
// script messages are queued as inbound messages, and outbound messages
// queued by anyone are sent to script. It lets the bridge run without a
// rendering framework behind it.
type BusFramework struct {
	bus *bus.MessageBus
	log *slog.Logger

	mu      sync.Mutex
	mounts  []Mount
	dropped int
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewBusFramework(mb *bus.MessageBus, log *slog.Logger) *BusFramework {
	return &BusFramework{
		bus: mb,
		log: logger.Component(log, "bridge.framework"),
	}
}

// Attach starts relaying outbound bus messages to host.
func (f *BusFramework) Attach(host Host) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})

	go f.relay(ctx, host, f.done)
}

func (f *BusFramework) relay(ctx context.Context, host Host, done chan<- struct{}) {
	defer close(done)

	for {
		msg, ok := f.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}

		if err := host.SendMessage(msg.Content); err != nil {
			f.log.Warn("Failed to relay message to script", "source", msg.Source, "error", err)
		}
	}
}

func (f *BusFramework) AddRootComponent(_ context.Context, component string, selector string) error {
	f.mu.Lock()
	f.mounts = append(f.mounts, Mount{Component: component, Selector: selector})
	f.mu.Unlock()

	f.log.Info("Mounted root component", "component", component, "selector", selector)
	return nil
}

// MessageReceived never blocks the UI loop: when the inbound queue is full
// the message is dropped and counted.
func (f *BusFramework) MessageReceived(origin *url.URL, message string) {
	inbound := bus.InboundMessage{Content: message, At: time.Now().UTC()}
	if origin != nil {
		inbound.Origin = origin.String()
	}

	if !f.bus.TryPublishInbound(inbound) {
		f.mu.Lock()
		f.dropped++
		dropped := f.dropped
		f.mu.Unlock()

		f.log.Warn("Dropped script message, inbound queue full", "dropped_total", dropped)
	}
}

// Close stops the relay and waits for an in-flight send to finish.
func (f *BusFramework) Close(ctx context.Context) error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mounts returns the root components mounted so far.
func (f *BusFramework) Mounts() []Mount {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.mounts)
}

// Dropped returns how many script messages were dropped.
func (f *BusFramework) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.dropped
}
