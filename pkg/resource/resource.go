// Package resource serves the app scheme from a content provider.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hostbridge/pkg/config"
	"hostbridge/pkg/content"
	"hostbridge/pkg/logger"
)

// MaxAssetBytes bounds how much of one asset is buffered for the engine.
const MaxAssetBytes = 64 << 20

// CacheControl keeps the engine from caching app content across reloads.
const CacheControl = "no-cache, max-age=0, must-revalidate, no-store"

// VirtualRequest is an engine request for the app scheme.
type VirtualRequest struct {
	Scheme string
	Path   string
	URI    string
}

// VirtualResponse is a resolved asset. Headers always carry Content-Type.
type VirtualResponse struct {
	StatusCode    int
	StatusMessage string
	Body          io.Reader
	Length        int64
	Headers       map[string]string
}

// ResourceError is a request that could not be served.
type ResourceError struct {
	URI        string
	StatusCode int
	Message    string
	Err        error
}

func (e *ResourceError) Error() string {
	text := fmt.Sprintf("failed to serve %q: %d - %s", e.URI, e.StatusCode, e.Message)
	if e.Err != nil {
		text += ": " + e.Err.Error()
	}

	return text
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// SchemeMismatchError is a request for a scheme other than the app scheme.
type SchemeMismatchError struct {
	Scheme string
	Want   string
}

func (e *SchemeMismatchError) Error() string {
	return fmt.Sprintf("invalid scheme %q, want %q", e.Scheme, e.Want)
}

// Server resolves app scheme requests. It holds no per-request state and is
// safe for concurrent use.
type Server struct {
	scheme   string
	hostPage string
	provider content.Provider
	maxBytes int64
	log      *slog.Logger
}

// NewServer serves cfg's scheme from provider.
func NewServer(cfg config.AppConfig, provider content.Provider, log *slog.Logger) *Server {
	scheme := strings.ToLower(strings.TrimSpace(cfg.Scheme))
	if scheme == "" {
		scheme = config.DefaultScheme
	}
	hostPage := strings.TrimLeft(strings.TrimSpace(cfg.HostPage), "/")
	if hostPage == "" {
		hostPage = config.DefaultHostPage
	}

	return &Server{
		scheme:   scheme,
		hostPage: hostPage,
		provider: provider,
		maxBytes: MaxAssetBytes,
		log:      logger.Component(log, "resource.server"),
	}
}

// Scheme returns the app scheme this server answers.
func (s *Server) Scheme() string {
	return s.scheme
}

// HostPage returns the entry document served for the scheme root.
func (s *Server) HostPage() string {
	return s.hostPage
}

// Serve resolves req. The scheme root is served as the host page.
func (s *Server) Serve(ctx context.Context, req VirtualRequest) (*VirtualResponse, error) {
	if !strings.EqualFold(req.Scheme, s.scheme) {
		return nil, &SchemeMismatchError{Scheme: req.Scheme, Want: s.scheme}
	}

	name, err := url.PathUnescape(req.Path)
	if err != nil {
		return nil, &ResourceError{URI: req.URI, StatusCode: http.StatusNotFound, Message: "malformed path", Err: err}
	}
	if name == "" || name == "/" {
		name = s.hostPage
	}

	file, err := s.provider.Open(ctx, name)
	if err != nil {
		return nil, s.failure(req.URI, err)
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		return nil, s.failure(req.URI, content.NormalizeIOError(err, "read file"))
	}
	if int64(len(data)) > s.maxBytes {
		return nil, s.failure(req.URI, content.NewError(content.ErrorTooLarge, "asset exceeds "+strconv.FormatInt(s.maxBytes, 10)+" bytes"))
	}

	contentType := ContentType(name)
	s.log.Debug("Served resource", "uri", req.URI, "path", name, "bytes", len(data), "encoding", file.Encoding)

	return &VirtualResponse{
		StatusCode:    http.StatusOK,
		StatusMessage: http.StatusText(http.StatusOK),
		Body:          bytes.NewReader(data),
		Length:        int64(len(data)),
		Headers: map[string]string{
			"Content-Type":   contentType,
			"Content-Length": strconv.Itoa(len(data)),
			"Cache-Control":  CacheControl,
		},
	}, nil
}

func (s *Server) failure(uri string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ResourceError{URI: uri, StatusCode: http.StatusServiceUnavailable, Message: "request cancelled", Err: err}
	}

	status := statusFor(content.CategoryFromError(err))
	return &ResourceError{URI: uri, StatusCode: status, Message: http.StatusText(status), Err: err}
}

// statusFor hides traversal attempts behind the same status as a miss.
func statusFor(category string) int {
	switch category {
	case content.ErrorNotFound, content.ErrorInvalidPath, content.ErrorOutsideRoot:
		return http.StatusNotFound
	case content.ErrorPermissionDenied:
		return http.StatusForbidden
	case content.ErrorTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
