// Package bridge wires a component framework to a browser engine widget.
//
// Manager is the composition root: it owns the widget handle, registers the
// app scheme, the navigation hooks, the glue script and the script message
// listener, and tears them down in a fixed order. Every widget call crosses
// onto the UI loop through the Dispatcher it was given.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"hostbridge/pkg/bus"
	"hostbridge/pkg/config"
	"hostbridge/pkg/content"
	"hostbridge/pkg/dispatch"
	"hostbridge/pkg/logger"
	"hostbridge/pkg/messaging"
	"hostbridge/pkg/navigation"
	"hostbridge/pkg/resource"
	"hostbridge/pkg/webview"
)

// Framework is the component framework hosted in the widget.
type Framework interface {
	// Attach hands the framework its host before any component is mounted.
	Attach(host Host)
	AddRootComponent(ctx context.Context, component string, selector string) error
	// MessageReceived is called on the UI loop for every script message.
	MessageReceived(origin *url.URL, message string)
	// Close flushes pending component work. It runs before any bridge hook is removed.
	Close(ctx context.Context) error
}

// Host is what the framework may ask of the bridge.
type Host interface {
	// Navigate loads path, resolved against the base URI.
	Navigate(path string) error
	SendMessage(message string) error
	Dispatcher() dispatch.Dispatcher
	BaseURI() *url.URL
}

// Options are the collaborators of a Manager. Bus and Opener are optional.
type Options struct {
	App        config.AppConfig
	View       webview.WebView
	Dispatcher dispatch.Dispatcher
	Provider   content.Provider
	Framework  Framework
	Opener     navigation.Opener
	Bus        *bus.MessageBus
	Log        *slog.Logger
}

type Manager struct {
	app        config.AppConfig
	view       webview.WebView
	dispatcher dispatch.Dispatcher
	framework  Framework
	bus        *bus.MessageBus
	log        *slog.Logger

	base        *url.URL
	handler     *resource.Handler
	interceptor *navigation.Interceptor
	channel     *messaging.Channel

	mu       sync.Mutex
	state    State
	attached bool

	// Owned by the UI loop.
	navigation webview.Registration
	listener   *messaging.Listener
	ucm        webview.UserContentManager
}

// New validates opts and builds a Manager in StateConstructed. Nothing is
// registered with the widget until Start.
func New(opts Options) (*Manager, error) {
	switch {
	case opts.View == nil:
		return nil, errors.New("bridge: widget is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("bridge: dispatcher is required")
	case opts.Provider == nil:
		return nil, errors.New("bridge: content provider is required")
	case opts.Framework == nil:
		return nil, errors.New("bridge: framework is required")
	}

	app := opts.App
	if strings.TrimSpace(app.Scheme) == "" {
		app.Scheme = config.DefaultScheme
	}
	if strings.TrimSpace(app.Host) == "" {
		app.Host = config.DefaultHost
	}
	if strings.TrimSpace(app.RootComponent) == "" {
		app.RootComponent = config.DefaultRootComponent
	}
	if strings.TrimSpace(app.MountSelector) == "" {
		app.MountSelector = config.DefaultMountSelector
	}

	base, err := url.Parse(app.BaseURI())
	if err != nil {
		return nil, fmt.Errorf("bridge: parse base uri: %w", err)
	}

	m := &Manager{
		app:        app,
		view:       opts.View,
		dispatcher: opts.Dispatcher,
		framework:  opts.Framework,
		bus:        opts.Bus,
		log:        logger.Component(opts.Log, "bridge.manager"),
		base:       base,
		state:      StateConstructed,
	}

	server := resource.NewServer(app, opts.Provider, opts.Log)
	m.handler = resource.NewHandler(server, opts.Log, m.resourceServed)
	m.interceptor = navigation.NewInterceptor(base, opts.Opener, opts.Log, m.navigationDecided)
	m.channel = messaging.NewChannel(opts.View, opts.Dispatcher, opts.Log)

	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Start registers the bridge with the widget, mounts the root component and
// loads the scheme root. A setup failure returns a *SetupError, releases what
// was already registered and leaves the Manager in StateFailed.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.transition("start", StateRegistering, StateConstructed); err != nil {
		return err
	}

	_, err := dispatch.Call(ctx, m.dispatcher, func() (struct{}, error) {
		return struct{}{}, m.register()
	})
	if err != nil {
		// register may still be queued when ctx ends first. The release is
		// posted behind it, so whatever it attaches is undone.
		m.releaseOnLoop(ctx)
		m.setState(StateFailed)
		return unwrapWork(err)
	}

	m.setState(StateStarting)

	m.mu.Lock()
	m.attached = true
	m.mu.Unlock()
	m.framework.Attach(m)

	_, err = dispatch.Call(ctx, m.dispatcher, func() (struct{}, error) {
		return struct{}{}, m.framework.AddRootComponent(ctx, m.app.RootComponent, m.app.MountSelector)
	})
	if err != nil {
		m.abortStart(ctx)
		return fmt.Errorf("mount root component %s into %s: %w", m.app.RootComponent, m.app.MountSelector, unwrapWork(err))
	}

	if err := m.Navigate("/"); err != nil {
		m.abortStart(ctx)
		return fmt.Errorf("initial navigation: %w", err)
	}

	m.setState(StateRunning)
	m.log.Info("Bridge started", "base_uri", m.base.String(), "root_component", m.app.RootComponent, "selector", m.app.MountSelector)
	return nil
}

// register runs on the UI loop.
func (m *Manager) register() error {
	webContext := m.view.WebContext()
	if webContext == nil {
		return &SetupError{Step: StepWebContext, Err: ErrNoWebContext}
	}

	m.navigation = m.interceptor.Attach(m.view)

	if err := webContext.RegisterURIScheme(m.app.Scheme, m.handler.ServeScheme); err != nil {
		m.release()
		return &SetupError{Step: StepRegisterScheme + " " + m.app.Scheme, Err: err}
	}

	m.ucm = m.view.UserContentManager()
	messaging.Install(m.ucm)

	listener, err := messaging.Listen(m.ucm, m.base, m.messageReceived)
	if err != nil {
		m.release()
		return &SetupError{Step: StepRegisterHandler + " " + messaging.ChannelName, Err: err}
	}
	m.listener = listener

	m.log.Debug("Bridge registered", "scheme", m.app.Scheme, "channel", messaging.ChannelName)
	return nil
}

// release runs on the UI loop and undoes register in reverse dependency
// order: navigation hooks first, then the listener and glue script.
func (m *Manager) release() {
	if m.navigation != nil {
		m.navigation.Detach()
		m.navigation = nil
	}
	if m.listener != nil {
		m.listener.Close()
		m.listener = nil
	}
	if m.ucm != nil {
		m.ucm.RemoveAllScripts()
		m.ucm = nil
	}
}

func (m *Manager) abortStart(ctx context.Context) {
	m.mu.Lock()
	m.attached = false
	m.mu.Unlock()

	if err := m.framework.Close(ctx); err != nil {
		m.log.Warn("Framework close after failed start returned error", "error", err)
	}
	m.releaseOnLoop(ctx)
	m.setState(StateFailed)
}

// Dispose tears the bridge down: framework teardown first, then the
// navigation hooks, then the script message listener and glue script. It is
// safe to call more than once.
func (m *Manager) Dispose(ctx context.Context) error {
	m.mu.Lock()
	previous := m.state
	switch previous {
	case StateDisposing, StateDisposed:
		m.mu.Unlock()
		return nil
	case StateRegistering, StateStarting:
		m.mu.Unlock()
		return &TransitionError{Op: "dispose", State: previous}
	}
	attached := m.attached
	m.attached = false
	m.state = StateDisposing
	m.mu.Unlock()

	m.stateChanged(StateDisposing)

	var frameworkErr error
	if attached {
		frameworkErr = m.framework.Close(ctx)
		if frameworkErr != nil {
			m.log.Warn("Framework teardown returned error", "error", frameworkErr)
		}
	}

	// A failed Start may have left a register item on the loop.
	if previous == StateRunning || previous == StateFailed {
		m.releaseOnLoop(ctx)
	}
	m.setState(StateDisposed)
	m.log.Info("Bridge disposed", "from", previous.String())

	if frameworkErr != nil {
		return fmt.Errorf("framework teardown: %w", frameworkErr)
	}
	return nil
}

// releaseOnLoop queues release behind any setup work still pending on the
// loop. When ctx ends first the release stays queued and runs in order; it
// only runs inline once the loop no longer accepts work.
func (m *Manager) releaseOnLoop(ctx context.Context) {
	if m.dispatcher.CheckAccess() {
		m.release()
		return
	}

	_, err := dispatch.Invoke(m.dispatcher, func() error {
		m.release()
		return nil
	}).Wait(ctx)
	switch {
	case err == nil:
	case errors.Is(err, dispatch.ErrLoopClosed):
		m.log.Warn("UI loop closed, releasing bridge hooks inline")
		m.release()
	default:
		m.log.Warn("Bridge hooks release still queued on the UI loop", "error", err)
	}
}

// Navigate implements Host.
func (m *Manager) Navigate(path string) error {
	if err := m.requireActive(); err != nil {
		return err
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse navigation path %q: %w", path, err)
	}
	target := m.base.ResolveReference(ref).String()

	if err := m.dispatcher.Dispatch(func() { m.view.LoadURI(target) }); err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}

	m.log.Debug("Navigating", "uri", target)
	return nil
}

// SendMessage implements Host. Delivery is fire-and-forget.
func (m *Manager) SendMessage(message string) error {
	if err := m.requireActive(); err != nil {
		return err
	}

	if err := m.channel.Send(message); err != nil {
		return err
	}

	m.publish(bus.Event{Type: bus.EventMessageSent, Bytes: len(message)})
	return nil
}

// Dispatcher implements Host.
func (m *Manager) Dispatcher() dispatch.Dispatcher {
	return m.dispatcher
}

// BaseURI implements Host. The returned URL is a copy.
func (m *Manager) BaseURI() *url.URL {
	clone := *m.base
	return &clone
}

// Reload asks the widget to reload the current document, e.g. after the
// content root changed.
func (m *Manager) Reload() error {
	if err := m.requireActive(); err != nil {
		return err
	}

	err := m.dispatcher.Dispatch(func() {
		m.view.EvaluateScript("location.reload()", func(evalErr error) {
			if evalErr != nil {
				m.log.Warn("Reload script failed", "error", evalErr)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	m.log.Info("Reloading widget")
	return nil
}

// messageReceived runs on the UI loop.
func (m *Manager) messageReceived(message messaging.InboundMessage) {
	m.mu.Lock()
	attached := m.attached
	m.mu.Unlock()
	if !attached {
		m.log.Debug("Dropping script message, framework not attached", "origin", message.Origin.String())
		return
	}

	m.publish(bus.Event{Type: bus.EventMessageReceived, URI: message.Origin.String(), Bytes: len(message.Content)})
	m.framework.MessageReceived(message.Origin, message.Content)
}

func (m *Manager) resourceServed(outcome resource.Outcome) {
	event := bus.Event{Type: bus.EventResourceServed, URI: outcome.URI, Status: outcome.StatusCode, Bytes: int(outcome.Length)}
	if outcome.Err != nil {
		event.Type = bus.EventResourceFailed
		event.Error = outcome.Err.Error()
	}
	m.publish(event)
}

func (m *Manager) navigationDecided(event navigation.Event) {
	if event.Kind == navigation.KindOther && event.Decision == webview.PolicyUse {
		return
	}

	busEvent := bus.Event{
		Type: bus.EventNavigationIntercepted,
		URI:  event.Target,
		Payload: map[string]string{
			"kind":     event.Kind.String(),
			"decision": event.Decision.String(),
			"opened":   fmt.Sprint(event.Opened),
		},
	}
	if event.Err != nil {
		busEvent.Error = event.Err.Error()
	}
	m.publish(busEvent)
}

func (m *Manager) requireActive() error {
	switch state := m.State(); state {
	case StateStarting, StateRunning, StateDisposing:
		return nil
	default:
		return fmt.Errorf("%w (state %s)", ErrNotRunning, state)
	}
}

func (m *Manager) transition(op string, next State, from ...State) error {
	m.mu.Lock()
	current := m.state
	allowed := false
	for _, state := range from {
		if current == state {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return &TransitionError{Op: op, State: current}
	}
	m.state = next
	m.mu.Unlock()

	m.stateChanged(next)
	return nil
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()

	m.stateChanged(next)
}

func (m *Manager) stateChanged(next State) {
	m.log.Debug("Bridge state changed", "state", next.String())
	m.publish(bus.Event{Type: bus.EventStateChanged, State: next.String()})
}

func (m *Manager) publish(event bus.Event) {
	if m.bus == nil {
		return
	}

	m.bus.PublishEvent(context.Background(), event)
}

// unwrapWork strips the dispatch wrapper so callers see a *SetupError or
// framework error directly.
func unwrapWork(err error) error {
	var workErr *dispatch.WorkError
	if errors.As(err, &workErr) && workErr.Err != nil {
		return workErr.Err
	}

	return err
}
