// Package webview describes the browser engine widget the bridge drives.
//
// Every method is called on the UI loop, and engines invoke connected signal
// handlers on the UI loop as well. URI scheme handlers are the exception: an
// engine may call them from any goroutine, concurrently, so they must be
// reentrant. Signal connections are returned as Registration values so that
// the owner detaches them explicitly.
package webview

import (
	"io"
	"sync"
)

// WebView is the engine widget.
type WebView interface {
	// WebContext returns nil when the widget has no network context.
	WebContext() WebContext
	UserContentManager() UserContentManager
	LoadURI(uri string)
	// EvaluateScript runs script in the main frame. done is called once with
	// the evaluation outcome; it may be nil.
	EvaluateScript(script string, done func(error))
	ConnectDecidePolicy(handler func(NavigationAction) PolicyDecision) Registration
	// ConnectCreate handles requests for a new widget (popups, target=_blank).
	// A nil WebView from handler refuses the request.
	ConnectCreate(handler func(NavigationAction) WebView) Registration
}

// WebContext owns the widget's network stack.
type WebContext interface {
	RegisterURIScheme(scheme string, handler func(SchemeRequest)) error
}

// UserContentManager owns injected scripts and script message handlers.
type UserContentManager interface {
	AddScript(script UserScript)
	RemoveAllScripts()
	// ConnectScriptMessageReceived subscribes to messages posted through
	// window.webkit.messageHandlers.<name>.
	ConnectScriptMessageReceived(name string, handler func(message string)) Registration
	RegisterScriptMessageHandler(name string) bool
	UnregisterScriptMessageHandler(name string)
}

// SchemeRequest is one engine request for a registered custom scheme. Exactly
// one of Finish or FinishError completes it.
type SchemeRequest interface {
	Scheme() string
	Path() string
	URI() string
	Finish(body io.Reader, length int64, contentType string)
	FinishError(err error)
}

type InjectedFrames int

const (
	FramesAll InjectedFrames = iota
	FramesTop
)

type InjectionTime int

const (
	InjectAtDocumentStart InjectionTime = iota
	InjectAtDocumentEnd
)

// UserScript is injected into every matching document the widget loads.
type UserScript struct {
	Source string
	Frames InjectedFrames
	Time   InjectionTime
}

// NavigationType is the engine's reason for a navigation.
type NavigationType int

const (
	NavigationOther NavigationType = iota
	NavigationLinkClicked
	NavigationFormSubmitted
	NavigationBackForward
	NavigationReload
	NavigationFormResubmitted
)

func (t NavigationType) String() string {
	switch t {
	case NavigationLinkClicked:
		return "link_clicked"
	case NavigationFormSubmitted:
		return "form_submitted"
	case NavigationBackForward:
		return "back_forward"
	case NavigationReload:
		return "reload"
	case NavigationFormResubmitted:
		return "form_resubmitted"
	default:
		return "other"
	}
}

// NavigationAction is a proposed navigation.
type NavigationAction struct {
	URI         string
	Type        NavigationType
	UserGesture bool
	// NewWindow is set when the navigation asks for a new widget.
	NewWindow bool
}

type PolicyDecision int

const (
	PolicyUse PolicyDecision = iota
	PolicyIgnore
)

func (d PolicyDecision) String() string {
	if d == PolicyIgnore {
		return "ignore"
	}

	return "use"
}

// Registration is a connected handler. Detach may be called more than once.
type Registration interface {
	Detach()
}

type registration struct {
	once   sync.Once
	detach func()
}

// NewRegistration wraps detach so that it runs at most once.
func NewRegistration(detach func()) Registration {
	return &registration{detach: detach}
}

func (r *registration) Detach() {
	r.once.Do(func() {
		if r.detach != nil {
			r.detach()
		}
	})
}
