package devhost

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"hostbridge/pkg/resource"
)

// schemeRequest completes an app scheme request as an HTTP response.
type schemeRequest struct {
	scheme string
	path   string
	uri    string

	mu        sync.Mutex
	w         http.ResponseWriter
	completed bool
	abandoned bool
	done      chan struct{}
}

func newSchemeRequest(w http.ResponseWriter, scheme string, path string, uri string) *schemeRequest {
	return &schemeRequest{
		scheme: scheme,
		path:   path,
		uri:    uri,
		w:      w,
		done:   make(chan struct{}),
	}
}

func (r *schemeRequest) Scheme() string { return r.scheme }
func (r *schemeRequest) Path() string { return r.path }
func (r *schemeRequest) URI() string { return r.uri }

func (r *schemeRequest) Finish(body io.Reader, length int64, contentType string) {
	r.complete(func(w http.ResponseWriter) {
		if closer, ok := body.(io.Closer); ok {
			defer closer.Close()
		}

		header := w.Header()
		header.Set("Content-Type", contentType)
		header.Set("Cache-Control", resource.CacheControl)

		if isHTML(contentType) {
			document, err := io.ReadAll(body)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			document = injectBootstrap(document)
			header.Set("Content-Length", strconv.Itoa(len(document)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(document)
			return
		}

		if length >= 0 {
			header.Set("Content-Length", strconv.FormatInt(length, 10))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
	})
}

func (r *schemeRequest) FinishError(err error) {
	r.complete(func(w http.ResponseWriter) {
		status := http.StatusInternalServerError

		var mismatch *resource.SchemeMismatchError
		var resourceErr *resource.ResourceError
		switch {
		case errors.As(err, &mismatch):
			status = http.StatusBadRequest
		case errors.As(err, &resourceErr):
			status = resourceErr.StatusCode
		}

		http.Error(w, http.StatusText(status), status)
	})
}

// complete writes the response once, unless the HTTP handler already gave up.
func (r *schemeRequest) complete(write func(http.ResponseWriter)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completed {
		return
	}
	r.completed = true
	defer close(r.done)

	if r.abandoned {
		return
	}
	write(r.w)
}

// wait blocks until the request is completed or ctx ends.
func (r *schemeRequest) wait(ctx context.Context) {
	select {
	case <-r.done:
	case <-ctx.Done():
		r.mu.Lock()
		r.abandoned = true
		r.mu.Unlock()
	}
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/html"
}
