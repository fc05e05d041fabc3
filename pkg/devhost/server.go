// Package devhost runs the bridge against an ordinary browser. Pages are
// served from the registered app scheme over loopback HTTP, and a bootstrap
// script connects each page back to the host over a websocket that carries
// script messages, link navigations and script evaluation.
package devhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hostbridge/pkg/bus"
	"hostbridge/pkg/config"
	"hostbridge/pkg/dispatch"
	"hostbridge/pkg/logger"
)

// Options configure a Server. Ready, when set, gates /readyz in addition to
// a connected page. Bus, when set, receives page connection events.
type Options struct {
	App        config.AppConfig
	Listen     config.DevHostConfig
	Dispatcher dispatch.Dispatcher
	Ready      func() bool
	Bus        *bus.MessageBus
	Log        *slog.Logger
}

type Server struct {
	scheme string
	addr   string
	view   *View
	ready  func() bool
	bus    *bus.MessageBus
	log    *slog.Logger
	router chi.Router

	mu        sync.RWMutex
	startedAt time.Time
}

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Pages         int    `json:"pages"`
	Current       string `json:"current,omitempty"`
}

func New(opts Options) (*Server, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	base, err := url.Parse(opts.App.BaseURI())
	if err != nil {
		return nil, fmt.Errorf("parse base uri: %w", err)
	}

	host := strings.TrimSpace(opts.Listen.Host)
	if host == "" {
		host = config.DefaultDevHost
	}
	port := opts.Listen.Port
	if port <= 0 {
		port = config.DefaultDevPort
	}

	s := &Server{
		scheme: base.Scheme,
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		view:   newView(base, opts.Dispatcher, opts.Log),
		ready:  opts.Ready,
		bus:    opts.Bus,
		log:    logger.Component(opts.Log, "devhost.server"),
	}
	s.router = s.routes()

	return s, nil
}

// View returns the widget pages are connected to.
func (s *Server) View() *View {
	return s.view
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the dev host's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get(SocketPath, s.handleSocket)
	r.Get(BootstrapPath, s.handleBootstrap)
	r.Get("/*", s.handleScheme)

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Dev host started", "address", "http://"+s.addr+"/")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start dev host: %w", err)
	}

	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug("Handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Server) isReady() bool {
	if s.view.Pages() == 0 {
		return false
	}

	return s.ready == nil || s.ready()
}

func (s *Server) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.mu.RLock()
	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}
	s.mu.RUnlock()

	payload := statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Pages:         s.view.Pages(),
		Current:       s.view.Current(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Server) handleBootstrap(w http.ResponseWriter, _ *http.Request) {
	names, scripts := s.view.content.bootstrap()

	w.Header().Set("Content-Type", "text/javascript")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(bootstrapScript(names, scripts)))
}

// handleScheme serves every other path through the app scheme handler, the
// way the engine would for app://host/<path>.
func (s *Server) handleScheme(w http.ResponseWriter, r *http.Request) {
	handler := s.view.context.handler(s.scheme)
	if handler == nil {
		http.Error(w, "app scheme is not registered", http.StatusServiceUnavailable)
		return
	}

	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	target := &url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery}
	uri := s.view.base.ResolveReference(target).String()

	req := newSchemeRequest(w, s.scheme, path, uri)
	handler(req)
	req.wait(r.Context())
}

func (s *Server) publishPages(eventType bus.EventType, pageID string) {
	if s.bus == nil {
		return
	}

	s.bus.PublishEvent(context.Background(), bus.Event{
		Type:    eventType,
		Payload: map[string]string{"page": pageID, "pages": strconv.Itoa(s.view.Pages())},
	})
}
