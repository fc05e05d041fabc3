// Package webviewtest provides an in-memory engine that records every call
// made against it.
package webviewtest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"sync"

	"hostbridge/pkg/dispatch"
	"hostbridge/pkg/webview"
)

// Recorder is the shared call log of one fake widget.
type Recorder struct {
	mu         sync.Mutex
	calls      []string
	violations []string
	// owner, when set, is checked on every call. Calls made off its loop are
	// recorded as affinity violations.
	owner dispatch.Dispatcher
}

func (r *Recorder) record(call string) {
	owner := r.currentOwner()
	onLoop := owner == nil || owner.CheckAccess()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)
	if !onLoop {
		r.violations = append(r.violations, call)
	}
}

func (r *Recorder) currentOwner() dispatch.Dispatcher {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.owner
}

// Note appends a caller-supplied entry, so tests can interleave their own
// collaborators' calls with the engine's.
func (r *Recorder) Note(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)
}

// SetOwner sets the dispatcher whose loop every call must run on.
func (r *Recorder) SetOwner(owner dispatch.Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.owner = owner
}

// Calls returns the ordered call log.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.calls)
}

// Violations returns calls made off the owner's loop.
func (r *Recorder) Violations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.violations)
}

// WebView is a fake widget.
type WebView struct {
	*Recorder

	mu       sync.Mutex
	context  *WebContext
	content  *UserContentManager
	loaded   []string
	scripts  []string
	evalErr  error
	policies map[int]func(webview.NavigationAction) webview.PolicyDecision
	creates  map[int]func(webview.NavigationAction) webview.WebView
	nextID   int
}

// NewWebView returns a widget with a web context and user content manager.
func NewWebView() *WebView {
	recorder := &Recorder{}
	return &WebView{
		Recorder: recorder,
		context:  &WebContext{recorder: recorder, schemes: map[string]func(webview.SchemeRequest){}},
		content:  newUserContentManager(recorder),
		policies: map[int]func(webview.NavigationAction) webview.PolicyDecision{},
		creates:  map[int]func(webview.NavigationAction) webview.WebView{},
	}
}

// WithoutContext drops the web context, as a widget that was never realized.
func (w *WebView) WithoutContext() *WebView {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.context = nil
	return w
}

// FailEvaluation makes every later EvaluateScript call report err.
func (w *WebView) FailEvaluation(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evalErr = err
}

// Context returns the fake web context, or nil.
func (w *WebView) Context() *WebContext {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.context
}

// Content returns the fake user content manager.
func (w *WebView) Content() *UserContentManager {
	return w.content
}

func (w *WebView) WebContext() webview.WebContext {
	w.record("web-context")

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.context == nil {
		return nil
	}
	return w.context
}

func (w *WebView) UserContentManager() webview.UserContentManager {
	return w.content
}

func (w *WebView) LoadURI(uri string) {
	w.record("load " + uri)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.loaded = append(w.loaded, uri)
}

func (w *WebView) EvaluateScript(script string, done func(error)) {
	w.record("evaluate")

	w.mu.Lock()
	w.scripts = append(w.scripts, script)
	err := w.evalErr
	w.mu.Unlock()

	if done != nil {
		done(err)
	}
}

func (w *WebView) ConnectDecidePolicy(handler func(webview.NavigationAction) webview.PolicyDecision) webview.Registration {
	w.record("connect decide-policy")

	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.policies[id] = handler

	return webview.NewRegistration(func() {
		w.record("disconnect decide-policy")

		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.policies, id)
	})
}

func (w *WebView) ConnectCreate(handler func(webview.NavigationAction) webview.WebView) webview.Registration {
	w.record("connect create")

	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.creates[id] = handler

	return webview.NewRegistration(func() {
		w.record("disconnect create")

		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.creates, id)
	})
}

// Loaded returns every URI passed to LoadURI.
func (w *WebView) Loaded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.loaded)
}

// Scripts returns every evaluated script.
func (w *WebView) Scripts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.scripts)
}

// DecidePolicy emits the decide-policy signal. With no handler connected the
// engine default is PolicyUse.
func (w *WebView) DecidePolicy(action webview.NavigationAction) webview.PolicyDecision {
	w.mu.Lock()
	handlers := sortedHandlers(w.policies)
	w.mu.Unlock()

	decision := webview.PolicyUse
	for _, handler := range handlers {
		decision = handler(action)
	}

	return decision
}

// Create emits the create signal and returns the widget the handlers produced.
func (w *WebView) Create(action webview.NavigationAction) webview.WebView {
	w.mu.Lock()
	handlers := sortedHandlers(w.creates)
	w.mu.Unlock()

	var created webview.WebView
	for _, handler := range handlers {
		if result := handler(action); result != nil {
			created = result
		}
	}

	return created
}

// Handlers reports how many decide-policy and create handlers are connected.
func (w *WebView) Handlers() (policies int, creates int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.policies), len(w.creates)
}

func sortedHandlers[H any](handlers map[int]H) []H {
	ids := make([]int, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	result := make([]H, 0, len(ids))
	for _, id := range ids {
		result = append(result, handlers[id])
	}

	return result
}

// WebContext is a fake network context.
type WebContext struct {
	recorder *Recorder

	mu          sync.Mutex
	schemes     map[string]func(webview.SchemeRequest)
	registerErr error
}

// FailRegistration makes later RegisterURIScheme calls return err.
func (c *WebContext) FailRegistration(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registerErr = err
}

func (c *WebContext) RegisterURIScheme(scheme string, handler func(webview.SchemeRequest)) error {
	c.recorder.record("register-scheme " + scheme)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registerErr != nil {
		return c.registerErr
	}
	c.schemes[scheme] = handler
	return nil
}

// Request routes rawURI to the handler registered for scheme, regardless of
// the URI's own scheme, and returns the completed request.
func (c *WebContext) Request(scheme string, rawURI string) (*SchemeRequest, error) {
	c.mu.Lock()
	handler, ok := c.schemes[scheme]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for scheme %q", scheme)
	}

	req, err := NewSchemeRequest(rawURI)
	if err != nil {
		return nil, err
	}

	handler(req)
	return req, nil
}

// SchemeRequest is a fake engine request that captures its completion.
type SchemeRequest struct {
	scheme string
	path   string
	uri    string

	mu          sync.Mutex
	completions int
	body        []byte
	length      int64
	contentType string
	err         error
}

func NewSchemeRequest(rawURI string) (*SchemeRequest, error) {
	parsed, err := url.Parse(rawURI)
	if err != nil {
		return nil, err
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	return &SchemeRequest{scheme: parsed.Scheme, path: path, uri: rawURI}, nil
}

func (r *SchemeRequest) Scheme() string { return r.scheme }
func (r *SchemeRequest) Path() string { return r.path }
func (r *SchemeRequest) URI() string { return r.uri }

func (r *SchemeRequest) Finish(body io.Reader, length int64, contentType string) {
	data, readErr := io.ReadAll(body)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.completions++
	r.body = data
	r.length = length
	r.contentType = contentType
	if readErr != nil {
		r.err = readErr
	}
}

func (r *SchemeRequest) FinishError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completions++
	if err == nil {
		err = errors.New("request failed")
	}
	r.err = err
}

// Completions counts Finish and FinishError calls.
func (r *SchemeRequest) Completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.completions
}

// Result returns what the request was completed with.
func (r *SchemeRequest) Result() (body []byte, length int64, contentType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return bytes.Clone(r.body), r.length, r.contentType, r.err
}

// UserContentManager is a fake script and message handler registry.
type UserContentManager struct {
	recorder *Recorder

	mu          sync.Mutex
	scripts     []webview.UserScript
	registered  map[string]bool
	subscribers map[string]map[int]func(string)
	nextID      int
	reject      bool
}

func newUserContentManager(recorder *Recorder) *UserContentManager {
	return &UserContentManager{
		recorder:    recorder,
		registered:  map[string]bool{},
		subscribers: map[string]map[int]func(string){},
	}
}

// RejectHandlers makes RegisterScriptMessageHandler report failure.
func (m *UserContentManager) RejectHandlers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reject = true
}

func (m *UserContentManager) AddScript(script webview.UserScript) {
	m.recorder.record("add-script")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.scripts = append(m.scripts, script)
}

func (m *UserContentManager) RemoveAllScripts() {
	m.recorder.record("remove-all-scripts")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.scripts = nil
}

func (m *UserContentManager) ConnectScriptMessageReceived(name string, handler func(string)) webview.Registration {
	m.recorder.record("connect script-message-received " + name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribers[name] == nil {
		m.subscribers[name] = map[int]func(string){}
	}
	id := m.nextID
	m.nextID++
	m.subscribers[name][id] = handler

	return webview.NewRegistration(func() {
		m.recorder.record("disconnect script-message-received " + name)

		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers[name], id)
	})
}

func (m *UserContentManager) RegisterScriptMessageHandler(name string) bool {
	m.recorder.record("register-handler " + name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reject {
		return false
	}
	m.registered[name] = true
	return true
}

func (m *UserContentManager) UnregisterScriptMessageHandler(name string) {
	m.recorder.record("unregister-handler " + name)

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.registered, name)
}

// Scripts returns the injected user scripts.
func (m *UserContentManager) Scripts() []webview.UserScript {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.scripts)
}

// Registered reports whether a script message handler is registered for name.
func (m *UserContentManager) Registered(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.registered[name]
}

// Post emits the script-message-received signal for name, as the engine does
// whenever script calls postMessage. The signal fires whether or not a
// handler is registered.
func (m *UserContentManager) Post(name string, message string) {
	m.mu.Lock()
	handlers := sortedHandlers(m.subscribers[name])
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(message)
	}
}
