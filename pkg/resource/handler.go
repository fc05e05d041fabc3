package resource

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"hostbridge/pkg/logger"
	"hostbridge/pkg/webview"
)

// Outcome describes one completed engine request.
type Outcome struct {
	URI         string
	StatusCode  int
	ContentType string
	Length      int64
	Err         error
}

// Handler completes engine scheme requests from a Server.
type Handler struct {
	server  *Server
	log     *slog.Logger
	observe func(Outcome)
}

// NewHandler wraps server. observe, when non-nil, sees every outcome.
func NewHandler(server *Server, log *slog.Logger, observe func(Outcome)) *Handler {
	return &Handler{
		server:  server,
		log:     logger.Component(log, "resource.handler"),
		observe: observe,
	}
}

// ServeScheme completes req exactly once. Failed requests are completed with
// an error so the engine reports a failed sub-request instead of waiting.
func (h *Handler) ServeScheme(req webview.SchemeRequest) {
	resp, err := h.server.Serve(context.Background(), VirtualRequest{
		Scheme: req.Scheme(),
		Path:   req.Path(),
		URI:    req.URI(),
	})
	if err != nil {
		h.fail(req, err)
		return
	}

	contentType := resp.Headers["Content-Type"]
	req.Finish(resp.Body, resp.Length, contentType)
	h.notify(Outcome{URI: req.URI(), StatusCode: resp.StatusCode, ContentType: contentType, Length: resp.Length})
}

func (h *Handler) fail(req webview.SchemeRequest, err error) {
	status := http.StatusInternalServerError

	var mismatch *SchemeMismatchError
	var resourceErr *ResourceError
	switch {
	case errors.As(err, &mismatch):
		h.log.Error("Rejected request for foreign scheme", "uri", req.URI(), "scheme", mismatch.Scheme, "want", mismatch.Want)
		status = http.StatusBadRequest
	case errors.As(err, &resourceErr):
		h.log.Warn("Failed to serve resource", "uri", resourceErr.URI, "status", resourceErr.StatusCode, "message", resourceErr.Message, "error", resourceErr.Err)
		status = resourceErr.StatusCode
	default:
		h.log.Error("Failed to serve resource", "uri", req.URI(), "error", err)
	}

	req.FinishError(err)
	h.notify(Outcome{URI: req.URI(), StatusCode: status, Err: err})
}

func (h *Handler) notify(outcome Outcome) {
	if h.observe != nil {
		h.observe(outcome)
	}
}
