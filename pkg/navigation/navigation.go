// Package navigation keeps in-app navigation in the widget and sends user
// link clicks to the system browser.
package navigation

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"hostbridge/pkg/logger"
	"hostbridge/pkg/webview"
)

// Kind classifies a proposed navigation.
type Kind int

const (
	// KindOther covers programmatic loads, redirects, reloads and history moves.
	KindOther Kind = iota
	// KindInApp is a link click that stays on the app origin.
	KindInApp
	// KindExternalLinkClick is a link click leaving the app origin.
	KindExternalLinkClick
)

func (k Kind) String() string {
	switch k {
	case KindInApp:
		return "in_app"
	case KindExternalLinkClick:
		return "external_link_click"
	default:
		return "other"
	}
}

// Opener hands a URI to the operating system.
type Opener interface {
	Open(target *url.URL) error
}

// ParseError is a link target that is not an absolute URI.
type ParseError struct {
	URI string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse navigation target %q: %v", e.URI, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNotAbsolute = errors.New("uri is not absolute")

// Event reports one intercepted navigation.
type Event struct {
	Target   string
	Kind     Kind
	Decision webview.PolicyDecision
	// Opened is set when the target was handed to the Opener.
	Opened bool
	Err    error
}

// Interceptor decides navigation policy for one widget.
type Interceptor struct {
	base    *url.URL
	opener  Opener
	log     *slog.Logger
	observe func(Event)
}

// NewInterceptor treats links to base's scheme and host as in-app.
// observe, when non-nil, sees every decision.
func NewInterceptor(base *url.URL, opener Opener, log *slog.Logger, observe func(Event)) *Interceptor {
	return &Interceptor{
		base:    base,
		opener:  opener,
		log:     logger.Component(log, "navigation.interceptor"),
		observe: observe,
	}
}

// Attach connects the interceptor to view's decide-policy and create
// signals. Detaching the result disconnects both.
func (i *Interceptor) Attach(view webview.WebView) webview.Registration {
	policy := view.ConnectDecidePolicy(i.Decide)
	create := view.ConnectCreate(i.Create)

	return webview.NewRegistration(func() {
		policy.Detach()
		create.Detach()
	})
}

// Classify never opens anything.
func (i *Interceptor) Classify(action webview.NavigationAction) Kind {
	if action.Type != webview.NavigationLinkClicked {
		return KindOther
	}

	target, err := url.Parse(strings.TrimSpace(action.URI))
	if err == nil && i.sameOrigin(target) {
		return KindInApp
	}

	return KindExternalLinkClick
}

// Decide suppresses external link clicks and opens them with the system
// handler. Everything else proceeds in the widget.
func (i *Interceptor) Decide(action webview.NavigationAction) webview.PolicyDecision {
	kind := i.Classify(action)
	if kind != KindExternalLinkClick {
		i.notify(Event{Target: action.URI, Kind: kind, Decision: webview.PolicyUse})
		return webview.PolicyUse
	}

	i.openExternally(action)
	return webview.PolicyIgnore
}

// Create refuses every request for a second widget. Link clicks that asked
// for one are opened with the system handler instead.
func (i *Interceptor) Create(action webview.NavigationAction) webview.WebView {
	if action.Type == webview.NavigationLinkClicked {
		i.openExternally(action)
		return nil
	}

	i.log.Debug("Refused new window", "uri", action.URI, "type", action.Type.String())
	i.notify(Event{Target: action.URI, Kind: KindOther, Decision: webview.PolicyIgnore})
	return nil
}

func (i *Interceptor) openExternally(action webview.NavigationAction) {
	event := Event{Target: action.URI, Kind: KindExternalLinkClick, Decision: webview.PolicyIgnore}
	defer func() {
		i.notify(event)
	}()

	target, err := parseAbsolute(action.URI)
	if err != nil {
		i.log.Warn("Dropped link with malformed target", "uri", action.URI, "error", err)
		event.Err = err
		return
	}

	if i.opener == nil {
		return
	}
	if err := i.opener.Open(target); err != nil {
		i.log.Error("Failed to open link externally", "uri", target.String(), "error", err)
		event.Err = err
		return
	}

	event.Opened = true
	i.log.Info("Opened link externally", "uri", target.String())
}

func (i *Interceptor) sameOrigin(target *url.URL) bool {
	if i.base == nil || !target.IsAbs() {
		return !target.IsAbs()
	}

	return strings.EqualFold(target.Scheme, i.base.Scheme) && strings.EqualFold(target.Host, i.base.Host)
}

func (i *Interceptor) notify(event Event) {
	if i.observe != nil {
		i.observe(event)
	}
}

func parseAbsolute(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	target, err := url.Parse(trimmed)
	if err != nil {
		return nil, &ParseError{URI: raw, Err: err}
	}
	if !target.IsAbs() {
		return nil, &ParseError{URI: raw, Err: errNotAbsolute}
	}

	return target, nil
}
