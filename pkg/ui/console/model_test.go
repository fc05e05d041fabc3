package console

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"hostbridge/pkg/bus"
)

func newTestModel(t *testing.T, opts Options) (*model, *bus.MessageBus) {
	t.Helper()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	return newModel(context.Background(), mb, make(chan bus.Event), opts), mb
}

func TestEnterQueuesOutboundMessage(t *testing.T) {
	t.Parallel()

	m, mb := newTestModel(t, Options{})
	m.input.SetValue("  render list  ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected enter to return a send command")
	}
	if m.input.Value() != "" {
		t.Fatalf("input = %q, want cleared", m.input.Value())
	}

	msg := cmd()
	m.Update(msg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	outbound, ok := mb.ConsumeOutbound(ctx)
	if !ok {
		t.Fatal("expected an outbound message")
	}
	if outbound.Content != "render list" || outbound.Source != "console" {
		t.Fatalf("outbound = %+v", outbound)
	}
	if m.sent != 1 || len(m.entries) != 1 || m.entries[0].kind != entryOutbound {
		t.Fatalf("sent = %d, entries = %+v", m.sent, m.entries)
	}
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, Options{})
	m.input.SetValue("   ")

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("expected no command for blank input")
	}
}

func TestReloadCommand(t *testing.T) {
	t.Parallel()

	calls := 0
	m, _ := newTestModel(t, Options{Reload: func() error {
		calls++
		return errors.New("bridge is not running")
	}})
	m.input.SetValue("/reload")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected reload command")
	}
	m.Update(cmd())

	if calls != 1 {
		t.Fatalf("reload calls = %d, want 1", calls)
	}
	if m.lastErr != "bridge is not running" {
		t.Fatalf("lastErr = %q", m.lastErr)
	}
}

func TestReloadWithoutHandlerFails(t *testing.T) {
	t.Parallel()

	msg := reloadCmd(nil)()
	reloaded, ok := msg.(reloadedMsg)
	if !ok || reloaded.err == nil {
		t.Fatalf("msg = %#v, want reloadedMsg with error", msg)
	}
}

func TestClearCommandDropsEntries(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, Options{})
	m.appendEntry(entry{kind: entryEvent, text: "one"})
	m.input.SetValue("/clear")

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(m.entries))
	}
}

func TestInboundMessageIsShownAndWaitsForNext(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, Options{})

	_, cmd := m.Update(inboundMsg{message: bus.InboundMessage{Content: `{"op":"click"}`, At: time.Now()}})
	if cmd == nil {
		t.Fatal("expected a follow-up wait command")
	}
	if m.received != 1 {
		t.Fatalf("received = %d, want 1", m.received)
	}
	if !strings.Contains(m.viewport.View(), `{"op":"click"}`) {
		t.Fatalf("viewport does not show message: %q", m.viewport.View())
	}
}

func TestWaitForInboundReportsClosedBus(t *testing.T) {
	t.Parallel()

	mb := bus.NewMessageBus()
	mb.Close()

	if _, ok := waitForInbound(context.Background(), mb)().(busClosedMsg); !ok {
		t.Fatal("expected busClosedMsg")
	}
}

func TestEventsUpdateHeader(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, Options{BaseURI: "app://localhost/"})

	m.Update(eventMsg{event: bus.Event{Type: bus.EventStateChanged, State: "running"}})
	m.Update(eventMsg{event: bus.Event{Type: bus.EventPageConnected, Payload: map[string]string{"pages": "1"}}})
	m.Update(eventMsg{event: bus.Event{Type: bus.EventResourceFailed, URI: "app://localhost/missing.css", Status: 404}})
	m.Update(eventMsg{event: bus.Event{
		Type:    bus.EventNavigationIntercepted,
		URI:     "https://example.com/",
		Payload: map[string]string{"kind": "external_link_click", "decision": "ignore", "opened": "true"},
	}})

	if m.state != "running" || m.pages != "1" || m.failed != 1 {
		t.Fatalf("state = %q, pages = %q, failed = %d", m.state, m.pages, m.failed)
	}

	last := m.entries[len(m.entries)-1]
	if !strings.Contains(last.text, "opened externally") {
		t.Fatalf("last entry = %q", last.text)
	}

	view := m.View()
	if !strings.Contains(view, "app://localhost/") || !strings.Contains(view, "404 app://localhost/missing.css") {
		t.Fatalf("view missing header or failure:\n%s", view)
	}
}

func TestEntriesAreBounded(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, Options{})
	for i := 0; i < maxEntries+20; i++ {
		m.appendEntry(entry{kind: entryEvent, text: "tick"})
	}

	if len(m.entries) != maxEntries {
		t.Fatalf("entries = %d, want %d", len(m.entries), maxEntries)
	}
}

func TestHandleViewportMouseWheelUpDisablesFollowLog(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, Options{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()
	m.followLog = true

	previousOffset := m.viewport.YOffset
	if !m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp}) {
		t.Fatal("expected wheel-up mouse event to be handled")
	}
	if m.followLog {
		t.Fatal("expected followLog to be disabled after wheel-up scroll")
	}
	if m.viewport.YOffset >= previousOffset {
		t.Fatalf("YOffset = %d, want < %d", m.viewport.YOffset, previousOffset)
	}
}

func TestHandleViewportMouseIgnoresNonWheelEvents(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, Options{})
	if m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}) {
		t.Fatal("expected non-wheel mouse event to be ignored")
	}
}

func TestRunRequiresBus(t *testing.T) {
	t.Parallel()

	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error without a bus")
	}
}
