package devhost

import (
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"hostbridge/pkg/dispatch"
	"hostbridge/pkg/logger"
	"hostbridge/pkg/webview"
)

// ErrNoPage is reported for script evaluation while no page is connected.
var ErrNoPage = errors.New("no page connected")

const pageQueueSize = 64

// View is a widget whose documents are ordinary browser pages loaded from
// the dev host. Page events reach connected handlers through the dispatcher.
type View struct {
	base       *url.URL
	dispatcher dispatch.Dispatcher
	log        *slog.Logger

	context *webContext
	content *userContent

	mu       sync.Mutex
	pages    map[string]*page
	current  string
	policies handlers[func(webview.NavigationAction) webview.PolicyDecision]
	creates  handlers[func(webview.NavigationAction) webview.WebView]
}

func newView(base *url.URL, dispatcher dispatch.Dispatcher, log *slog.Logger) *View {
	v := &View{
		base:       base,
		dispatcher: dispatcher,
		log:        logger.Component(log, "devhost.view"),
		context:    &webContext{schemes: map[string]func(webview.SchemeRequest){}},
		pages:      map[string]*page{},
	}
	v.content = &userContent{view: v, registered: map[string]bool{}, subscribers: map[string]*handlers[func(string)]{}}

	return v
}

func (v *View) WebContext() webview.WebContext {
	return v.context
}

func (v *View) UserContentManager() webview.UserContentManager {
	return v.content
}

// LoadURI sends every connected page to uri. App URIs are loaded from the
// dev host.
func (v *View) LoadURI(uri string) {
	v.mu.Lock()
	v.current = uri
	v.mu.Unlock()

	sent := v.broadcast(hostFrame{Type: FrameNavigate, URL: v.pageURL(uri)})
	v.log.Debug("Loading document", "uri", uri, "pages", sent)
}

// Current returns the last URI passed to LoadURI.
func (v *View) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.current
}

func (v *View) EvaluateScript(script string, done func(error)) {
	sent := v.broadcast(hostFrame{Type: FrameEval, Script: script})

	var err error
	if sent == 0 {
		err = ErrNoPage
	}
	if done != nil {
		done(err)
	}
}

func (v *View) ConnectDecidePolicy(handler func(webview.NavigationAction) webview.PolicyDecision) webview.Registration {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.policies.add(handler)
	return webview.NewRegistration(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.policies.remove(id)
	})
}

func (v *View) ConnectCreate(handler func(webview.NavigationAction) webview.WebView) webview.Registration {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.creates.add(handler)
	return webview.NewRegistration(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.creates.remove(id)
	})
}

// Pages returns how many pages are connected.
func (v *View) Pages() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.pages)
}

func (v *View) addPage(p *page) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pages[p.id] = p
}

func (v *View) removePage(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.pages, id)
}

func (v *View) broadcast(frame hostFrame) int {
	v.mu.Lock()
	pages := make([]*page, 0, len(v.pages))
	for _, p := range v.pages {
		pages = append(pages, p)
	}
	v.mu.Unlock()

	sent := 0
	for _, p := range pages {
		if p.enqueue(frame) {
			sent++
		} else {
			v.log.Warn("Dropped frame for slow page", "page", p.id, "type", frame.Type)
		}
	}

	return sent
}

// handleFrame runs on the page's read goroutine.
func (v *View) handleFrame(p *page, frame pageFrame) {
	switch frame.Type {
	case FrameMessage:
		v.content.deliver(frame.Name, frame.Body)
	case FrameNavigation:
		v.navigate(p, frame)
	default:
		v.log.Warn("Ignored unknown page frame", "page", p.id, "type", frame.Type)
	}
}

func (v *View) navigate(p *page, frame pageFrame) {
	action := webview.NavigationAction{
		URI:         v.appURI(frame.URI, p.host),
		Type:        webview.NavigationLinkClicked,
		UserGesture: frame.UserGesture,
		NewWindow:   frame.Popup,
	}

	err := v.dispatcher.Dispatch(func() {
		if action.NewWindow {
			v.create(action)
			return
		}

		if v.decide(action) == webview.PolicyUse {
			p.enqueue(hostFrame{Type: FrameNavigate, URL: v.pageURL(action.URI)})
		}
	})
	if err != nil {
		v.log.Warn("Dropped navigation, UI loop unavailable", "uri", action.URI, "error", err)
	}
}

// decide runs on the UI loop. Any handler may veto the navigation.
func (v *View) decide(action webview.NavigationAction) webview.PolicyDecision {
	v.mu.Lock()
	policies := v.policies.snapshot()
	v.mu.Unlock()

	decision := webview.PolicyUse
	for _, policy := range policies {
		if policy(action) == webview.PolicyIgnore {
			decision = webview.PolicyIgnore
		}
	}

	return decision
}

// create runs on the UI loop. The dev host cannot host a second widget, so a
// created one is only logged.
func (v *View) create(action webview.NavigationAction) {
	v.mu.Lock()
	creates := v.creates.snapshot()
	v.mu.Unlock()

	for _, create := range creates {
		if created := create(action); created != nil {
			v.log.Warn("Ignoring widget created for new window", "uri", action.URI)
		}
	}
}

// appURI maps a page URL on the dev host back to the app scheme. Other URLs
// are returned unchanged.
func (v *View) appURI(raw string, pageHost string) string {
	target, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	if (target.Scheme != "http" && target.Scheme != "https") || !strings.EqualFold(target.Host, pageHost) {
		return raw
	}

	return v.base.ResolveReference(&url.URL{Path: target.Path, RawPath: target.RawPath, RawQuery: target.RawQuery, Fragment: target.Fragment}).String()
}

// pageURL maps an app URI to a dev host path. Other URIs are returned
// unchanged.
func (v *View) pageURL(uri string) string {
	target, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	if !strings.EqualFold(target.Scheme, v.base.Scheme) || !strings.EqualFold(target.Host, v.base.Host) {
		return uri
	}

	local := &url.URL{Path: target.Path, RawPath: target.RawPath, RawQuery: target.RawQuery, Fragment: target.Fragment}
	if local.Path == "" {
		local.Path = "/"
	}
	return local.String()
}

type webContext struct {
	mu      sync.Mutex
	schemes map[string]func(webview.SchemeRequest)
}

func (c *webContext) RegisterURIScheme(scheme string, handler func(webview.SchemeRequest)) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || handler == nil {
		return errors.New("scheme and handler are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.schemes[scheme]; exists {
		return errors.New("scheme " + scheme + " is already registered")
	}
	c.schemes[scheme] = handler
	return nil
}

func (c *webContext) handler(scheme string) func(webview.SchemeRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.schemes[strings.ToLower(scheme)]
}

type userContent struct {
	view *View

	mu          sync.Mutex
	scripts     []webview.UserScript
	registered  map[string]bool
	subscribers map[string]*handlers[func(string)]
}

func (u *userContent) AddScript(script webview.UserScript) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.scripts = append(u.scripts, script)
}

func (u *userContent) RemoveAllScripts() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.scripts = nil
}

func (u *userContent) ConnectScriptMessageReceived(name string, handler func(string)) webview.Registration {
	u.mu.Lock()
	defer u.mu.Unlock()

	subscribers := u.subscribers[name]
	if subscribers == nil {
		subscribers = &handlers[func(string)]{}
		u.subscribers[name] = subscribers
	}
	id := subscribers.add(handler)

	return webview.NewRegistration(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		subscribers.remove(id)
	})
}

func (u *userContent) RegisterScriptMessageHandler(name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if name == "" || u.registered[name] {
		return false
	}
	u.registered[name] = true
	return true
}

func (u *userContent) UnregisterScriptMessageHandler(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	delete(u.registered, name)
}

// bootstrap returns the registered handler names and injected scripts.
func (u *userContent) bootstrap() ([]string, []webview.UserScript) {
	u.mu.Lock()
	defer u.mu.Unlock()

	names := make([]string, 0, len(u.registered))
	for name := range u.registered {
		names = append(names, name)
	}
	slices.Sort(names)

	return names, slices.Clone(u.scripts)
}

// deliver hands a page message to the subscribers of name on the UI loop.
// Messages for unregistered handlers are dropped, as the engine does.
func (u *userContent) deliver(name string, body string) {
	err := u.view.dispatcher.Dispatch(func() {
		u.mu.Lock()
		registered := u.registered[name]
		var subscribers []func(string)
		if s := u.subscribers[name]; s != nil {
			subscribers = s.snapshot()
		}
		u.mu.Unlock()

		if !registered {
			u.view.log.Debug("Dropped message for unregistered handler", "name", name)
			return
		}
		for _, subscriber := range subscribers {
			subscriber(body)
		}
	})
	if err != nil {
		u.view.log.Warn("Dropped page message, UI loop unavailable", "name", name, "error", err)
	}
}

// handlers is a connection-ordered handler set. Callers hold the owner's lock.
type handlers[H any] struct {
	next    uint64
	ids     []uint64
	entries map[uint64]H
}

func (h *handlers[H]) add(handler H) uint64 {
	if h.entries == nil {
		h.entries = map[uint64]H{}
	}

	id := h.next
	h.next++
	h.ids = append(h.ids, id)
	h.entries[id] = handler
	return id
}

func (h *handlers[H]) remove(id uint64) {
	if _, ok := h.entries[id]; !ok {
		return
	}

	delete(h.entries, id)
	h.ids = slices.DeleteFunc(h.ids, func(existing uint64) bool { return existing == id })
}

func (h *handlers[H]) snapshot() []H {
	result := make([]H, 0, len(h.ids))
	for _, id := range h.ids {
		result = append(result, h.entries[id])
	}

	return result
}
