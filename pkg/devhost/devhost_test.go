package devhost

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"hostbridge/pkg/bridge"
	"hostbridge/pkg/config"
	"hostbridge/pkg/content"
	"hostbridge/pkg/dispatch"
	"hostbridge/pkg/logger"
	"hostbridge/pkg/messaging"
	"hostbridge/pkg/webview"
)

type recordingFramework struct {
	mu       sync.Mutex
	messages []string
	origins  []string
}

func (f *recordingFramework) Attach(bridge.Host) {}

func (f *recordingFramework) AddRootComponent(context.Context, string, string) error {
	return nil
}

func (f *recordingFramework) MessageReceived(origin *url.URL, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages = append(f.messages, message)
	f.origins = append(f.origins, origin.String())
}

func (f *recordingFramework) Close(context.Context) error {
	return nil
}

func (f *recordingFramework) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.messages...), append([]string(nil), f.origins...)
}

type recordingOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *recordingOpener) Open(target *url.URL) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opened = append(o.opened, target.String())
	return nil
}

func (o *recordingOpener) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string(nil), o.opened...)
}

type devHostEnv struct {
	loop      *dispatch.Loop
	server    *Server
	http      *httptest.Server
	manager   *bridge.Manager
	framework *recordingFramework
	opener    *recordingOpener
}

func startLoop(t *testing.T) *dispatch.Loop {
	t.Helper()

	loop := dispatch.NewLoop(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return loop
}

func newDevHostEnv(t *testing.T, start bool) *devHostEnv {
	t.Helper()

	loop := startLoop(t)
	app := config.Default().App

	env := &devHostEnv{
		loop:      loop,
		framework: &recordingFramework{},
		opener:    &recordingOpener{},
	}

	server, err := New(Options{
		App:        app,
		Dispatcher: loop,
		Ready:      func() bool { return env.manager != nil && env.manager.State() == bridge.StateRunning },
		Log:        logger.Discard(),
	})
	require.NoError(t, err)
	env.server = server

	manager, err := bridge.New(bridge.Options{
		App:        app,
		View:       server.View(),
		Dispatcher: loop,
		Provider: content.NewFSProvider(fstest.MapFS{
			"index.html": {Data: []byte("<html><head><title>app</title></head><body><div id=\"app\"></div></body></html>")},
			"app.js":     {Data: []byte("start()")},
		}),
		Framework: env.framework,
		Opener:    env.opener,
		Log:       logger.Discard(),
	})
	require.NoError(t, err)
	env.manager = manager

	env.http = httptest.NewServer(server.Handler())
	t.Cleanup(env.http.Close)

	if start {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, manager.Start(ctx))
		t.Cleanup(func() {
			_ = manager.Dispose(context.Background())
		})
	}

	return env
}

func (e *devHostEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.http.URL, "http") + SocketPath
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	require.Eventually(t, func() bool { return e.server.View().Pages() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func get(t *testing.T, rawURL string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestSchemeUnavailableBeforeStart(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, false)

	resp, _ := get(t, env.http.URL+"/")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServesHostPageWithBootstrap(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)

	resp, body := get(t, env.http.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache, max-age=0, must-revalidate, no-store", resp.Header.Get("Cache-Control"))
	require.Contains(t, body, "<head>"+bootstrapTag+"<title>app</title>")
	require.Contains(t, body, `<div id="app"></div>`)

	resp, body = get(t, env.http.URL+"/app.js")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))
	require.Equal(t, "start()", body)

	resp, _ = get(t, env.http.URL+"/missing.css")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSchemeServedWhileLoopBusy(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)

	unblock := make(chan struct{})
	require.NoError(t, env.loop.Dispatch(func() { <-unblock }))
	defer close(unblock)

	const requests = 4
	var wg sync.WaitGroup
	statuses := make([]int, requests)
	bodies := make([]string, requests)
	errs := make([]error, requests)
	for i := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := http.Get(env.http.URL + "/app.js")
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			statuses[i], bodies[i], errs[i] = resp.StatusCode, string(body), err
		}()
	}
	wg.Wait()

	for i := range requests {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, statuses[i])
		require.Equal(t, "start()", bodies[i])
	}
}

func TestBootstrapCarriesGlueScript(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)

	resp, body := get(t, env.http.URL+BootstrapPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `["webview"].forEach`)
	require.Contains(t, body, messaging.GlueScript)
	require.Less(t, strings.Index(body, "new WebSocket"), strings.Index(body, messaging.GlueScript))
}

func TestReadinessFollowsPagesAndBridge(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, _ := get(t, env.http.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = get(t, env.http.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.dial(t, ctx)

	resp, body := get(t, env.http.URL+"/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `"pages":1`)
	require.Contains(t, body, `"current":"app://localhost/"`)
}

func TestPageMessagesReachFrameworkInOrder(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	for _, body := range []string{"first", "second", "third"} {
		require.NoError(t, wsjson.Write(ctx, conn, pageFrame{Type: FrameMessage, Name: messaging.ChannelName, Body: body}))
	}
	require.NoError(t, wsjson.Write(ctx, conn, pageFrame{Type: FrameMessage, Name: "unregistered", Body: "dropped"}))

	require.Eventually(t, func() bool {
		messages, _ := env.framework.snapshot()
		return len(messages) == 3
	}, 2*time.Second, 10*time.Millisecond)

	messages, origins := env.framework.snapshot()
	require.Equal(t, []string{"first", "second", "third"}, messages)
	for _, origin := range origins {
		require.Equal(t, "app://localhost/", origin)
	}
}

func TestSendMessageEvaluatesOnPage(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	require.NoError(t, env.manager.SendMessage(`hello "page"`))

	var frame hostFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, FrameEval, frame.Type)
	require.Equal(t, messaging.DispatchScript(`hello "page"`), frame.Script)
}

func TestLinkNavigation(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	pageHost := strings.TrimPrefix(env.http.URL, "http://")

	require.NoError(t, wsjson.Write(ctx, conn, pageFrame{Type: FrameNavigation, URI: "https://example.com/docs", UserGesture: true}))
	require.NoError(t, wsjson.Write(ctx, conn, pageFrame{Type: FrameNavigation, URI: "https://example.com/popup", Popup: true, UserGesture: true}))
	require.NoError(t, wsjson.Write(ctx, conn, pageFrame{Type: FrameNavigation, URI: "http://" + pageHost + "/counter?start=3", UserGesture: true}))

	var frame hostFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, hostFrame{Type: FrameNavigate, URL: "/counter?start=3"}, frame)

	require.Eventually(t, func() bool { return len(env.opener.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"https://example.com/docs", "https://example.com/popup"}, env.opener.snapshot())
}

func TestDisposeUnregistersPageHandler(t *testing.T) {
	t.Parallel()

	env := newDevHostEnv(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	require.NoError(t, env.manager.Dispose(ctx))
	require.NoError(t, wsjson.Write(ctx, conn, pageFrame{Type: FrameMessage, Name: messaging.ChannelName, Body: "late"}))

	names, scripts := env.server.View().content.bootstrap()
	require.Empty(t, names)
	require.Empty(t, scripts)

	time.Sleep(50 * time.Millisecond)
	messages, _ := env.framework.snapshot()
	require.Empty(t, messages)
}

func TestURIMapping(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("app://localhost/")
	require.NoError(t, err)
	view := newView(base, nil, logger.Discard())

	require.Equal(t, "app://localhost/a/b.js?x=1#top", view.appURI("http://127.0.0.1:9000/a/b.js?x=1#top", "127.0.0.1:9000"))
	require.Equal(t, "http://127.0.0.1:9001/a", view.appURI("http://127.0.0.1:9001/a", "127.0.0.1:9000"))
	require.Equal(t, "mailto:someone@example.com", view.appURI("mailto:someone@example.com", "127.0.0.1:9000"))

	require.Equal(t, "/", view.pageURL("app://localhost"))
	require.Equal(t, "/counter?start=3", view.pageURL("app://localhost/counter?start=3"))
	require.Equal(t, "https://example.com/", view.pageURL("https://example.com/"))
}

func TestInjectBootstrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
		want     string
	}{
		{name: "head", document: "<html><head><title>x</title></head></html>", want: "<html><head>" + bootstrapTag + "<title>x</title></head></html>"},
		{name: "head with attributes", document: `<HEAD lang="en"><body></body>`, want: `<HEAD lang="en">` + bootstrapTag + "<body></body>"},
		{name: "fragment", document: `<div id="app"></div>`, want: bootstrapTag + `<div id="app"></div>`},
		{name: "header is not head", document: `<body><p>x</p><header class="top">Title</header></body>`, want: bootstrapTag + `<body><p>x</p><header class="top">Title</header></body>`},
		{name: "header before head", document: "<header></header><head>\n</head>", want: "<header></header><head>" + bootstrapTag + "\n</head>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, string(injectBootstrap([]byte(tt.document))))
		})
	}
}

func TestBootstrapScriptOrdersUserScripts(t *testing.T) {
	t.Parallel()

	script := bootstrapScript([]string{"webview"}, []webview.UserScript{
		{Source: "late()", Time: webview.InjectAtDocumentEnd},
		{Source: "top()", Frames: webview.FramesTop, Time: webview.InjectAtDocumentStart},
		{Source: "early()", Time: webview.InjectAtDocumentStart},
	})

	require.Less(t, strings.Index(script, "top()"), strings.Index(script, "early()"))
	require.Less(t, strings.Index(script, "early()"), strings.Index(script, "late()"))
	require.Contains(t, script, "if (window === window.top) {\ntop()\n}")
}
