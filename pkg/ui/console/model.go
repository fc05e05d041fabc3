package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hostbridge/pkg/bus"
)

const maxEntries = 500

type entryKind int

const (
	entryInbound entryKind = iota
	entryOutbound
	entryEvent
	entryError
)

type entry struct {
	kind entryKind
	at   time.Time
	text string
}

type inboundMsg struct {
	message bus.InboundMessage
}

type eventMsg struct {
	event bus.Event
}

type sentMsg struct {
	content string
	err     error
}

type reloadedMsg struct {
	err error
}

// busClosedMsg ends the matching wait loop.
type busClosedMsg struct{}

type model struct {
	ctx     context.Context
	bus     *bus.MessageBus
	events  <-chan bus.Event
	reload  func() error
	baseURI string

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	entries   []entry
	width     int
	height    int
	isReady   bool
	followLog bool
	state     string
	pages     string
	received  int
	sent      int
	failed    int
	lastErr   string
}

func newModel(ctx context.Context, mb *bus.MessageBus, events <-chan bus.Event, opts Options) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Message to send to the page..."
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:       ctx,
		bus:       mb,
		events:    events,
		reload:    opts.Reload,
		baseURI:   opts.BaseURI,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  vp,
		width:     100,
		height:    28,
		followLog: true,
		state:     "constructed",
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForInbound(m.ctx, m.bus),
		waitForEvent(m.events),
	)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			return m, m.submit()
		}
	case inboundMsg:
		m.received++
		m.appendEntry(entry{kind: entryInbound, at: typed.message.At, text: typed.message.Content})
		return m, waitForInbound(m.ctx, m.bus)
	case eventMsg:
		m.applyEvent(typed.event)
		return m, waitForEvent(m.events)
	case sentMsg:
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.appendEntry(entry{kind: entryError, at: time.Now(), text: typed.err.Error()})
			return m, nil
		}
		m.sent++
		m.lastErr = ""
		m.appendEntry(entry{kind: entryOutbound, at: time.Now(), text: typed.content})
		return m, nil
	case reloadedMsg:
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.appendEntry(entry{kind: entryError, at: time.Now(), text: "reload failed: " + typed.err.Error()})
			return m, nil
		}
		m.appendEntry(entry{kind: entryEvent, at: time.Now(), text: "reload requested"})
		return m, nil
	case busClosedMsg:
		return m, nil
	case spinner.TickMsg:
		if m.state == "running" {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles the input line: commands first, anything else is queued
// as an outbound message.
func (m *model) submit() tea.Cmd {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return nil
	}
	m.input.SetValue("")
	m.followLog = true

	switch strings.ToLower(line) {
	case "/exit", "/quit", ":q":
		return tea.Quit
	case "/reload":
		return reloadCmd(m.reload)
	case "/clear":
		m.entries = nil
		m.refreshViewport(true)
		return nil
	}

	return sendCmd(m.ctx, m.bus, line)
}

func (m *model) applyEvent(event bus.Event) {
	switch event.Type {
	case bus.EventStateChanged:
		m.state = event.State
		m.appendEntry(entry{kind: entryEvent, at: event.At, text: "bridge " + event.State})
	case bus.EventNavigationIntercepted:
		text := fmt.Sprintf("navigation %s (%s, %s)", event.URI, event.Payload["kind"], event.Payload["decision"])
		if event.Payload["opened"] == "true" {
			text += " opened externally"
		}
		m.appendEntry(entry{kind: entryEvent, at: event.At, text: text})
	case bus.EventResourceFailed:
		m.failed++
		m.appendEntry(entry{kind: entryError, at: event.At, text: fmt.Sprintf("%d %s", event.Status, event.URI)})
	case bus.EventPageConnected, bus.EventPageDisconnected:
		m.pages = event.Payload["pages"]
		m.appendEntry(entry{kind: entryEvent, at: event.At, text: strings.ReplaceAll(string(event.Type), "_", " ")})
	}
}

func (m *model) appendEntry(item entry) {
	if item.at.IsZero() {
		item.at = time.Now()
	}

	m.entries = append(m.entries, item)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("hostbridge console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"base:%s · state:%s · pages:%s · received:%d · sent:%d · failed resources:%d",
		displayOrNA(m.baseURI),
		m.renderState(),
		displayOrNA(m.pages),
		m.received,
		m.sent,
		m.failed,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send  ·  /reload  ·  /clear  ·  PgUp/PgDn scroll  ·  Ctrl+C/Esc quit")
	if m.state != "running" {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for the bridge...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last action failed: " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("Send")+" "+m.theme.hint.Render("(delivered through window.external.receiveMessage)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) renderState() string {
	switch m.state {
	case "running":
		return m.theme.stateRunning.Render(m.state)
	case "disposing", "disposed", "failed":
		return m.theme.stateStopping.Render(m.state)
	default:
		return m.state
	}
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset

	lines := make([]string, 0, len(m.entries))
	for _, item := range m.entries {
		lines = append(lines, m.renderEntry(item))
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderEntry(item entry) string {
	var tag string
	switch item.kind {
	case entryInbound:
		tag = m.theme.inboundTag.Render("page ▸ host")
	case entryOutbound:
		tag = m.theme.outboundTag.Render("host ▸ page")
	case entryError:
		tag = m.theme.errorTag.Render("error")
	default:
		tag = m.theme.eventTag.Render("event")
	}

	return m.theme.timestamp.Render(item.at.Local().Format("15:04:05")) + " " + tag + " " + m.theme.entryText.Render(item.text)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func waitForInbound(ctx context.Context, mb *bus.MessageBus) tea.Cmd {
	return func() tea.Msg {
		message, ok := mb.ConsumeInbound(ctx)
		if !ok {
			return busClosedMsg{}
		}

		return inboundMsg{message: message}
	}
}

func waitForEvent(events <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return busClosedMsg{}
		}

		return eventMsg{event: event}
	}
}

func sendCmd(ctx context.Context, mb *bus.MessageBus, content string) tea.Cmd {
	return func() tea.Msg {
		if !mb.PublishOutbound(ctx, bus.OutboundMessage{Content: content, Source: "console"}) {
			return sentMsg{content: content, err: fmt.Errorf("outbound queue closed")}
		}

		return sentMsg{content: content}
	}
}

func reloadCmd(reload func() error) tea.Cmd {
	return func() tea.Msg {
		if reload == nil {
			return reloadedMsg{err: fmt.Errorf("reload is not available")}
		}

		return reloadedMsg{err: reload()}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}
