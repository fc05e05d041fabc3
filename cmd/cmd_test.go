package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hostbridge/pkg/bus"
	"hostbridge/pkg/config"
	"hostbridge/pkg/logger"
)

func writeContentRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"index.html":   `<div id="app"></div>`,
		"css/site.css": "body{}",
	}
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	return root
}

func TestApplyServeOptionsOverridesConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := applyServeOptions(cfg, serveOptions{contentRoot: " site ", hostPage: "main.html", port: 9000, watch: true})
	if err != nil {
		t.Fatalf("applyServeOptions error = %v", err)
	}

	if cfg.App.ContentRoot != "site" || cfg.App.HostPage != "main.html" || cfg.DevHost.Port != 9000 || !cfg.Watch.Enabled {
		t.Fatalf("config = %+v / %+v / %+v", cfg.App, cfg.DevHost, cfg.Watch)
	}
}

func TestApplyServeOptionsValidates(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := applyServeOptions(cfg, serveOptions{port: 70000}); err == nil {
		t.Fatal("expected out of range port to be rejected")
	}
}

func TestResolveResourceServesFile(t *testing.T) {
	t.Parallel()

	app := config.Default().App
	app.ContentRoot = writeContentRoot(t)

	var out bytes.Buffer
	if err := resolveResource(context.Background(), app, "css/site.css", &out); err != nil {
		t.Fatalf("resolveResource error = %v", err)
	}

	text := out.String()
	for _, want := range []string{"app://localhost/css/site.css", "200", "text/css", "length:", "6"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output %q does not contain %q", text, want)
		}
	}
}

func TestResolveResourceRootIsHostPage(t *testing.T) {
	t.Parallel()

	app := config.Default().App
	app.ContentRoot = writeContentRoot(t)

	var out bytes.Buffer
	if err := resolveResource(context.Background(), app, "/", &out); err != nil {
		t.Fatalf("resolveResource error = %v", err)
	}
	if !strings.Contains(out.String(), "text/html") {
		t.Fatalf("output = %q, want host page", out.String())
	}
}

func TestResolveResourceReportsFailures(t *testing.T) {
	t.Parallel()

	app := config.Default().App
	app.ContentRoot = writeContentRoot(t)

	tests := []struct {
		target string
		want   string
	}{
		{target: "missing.js", want: "404"},
		{target: "../outside.txt", want: "404"},
		{target: "https://example.com/x", want: "invalid scheme"},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		if err := resolveResource(context.Background(), app, tt.target, &out); err != nil {
			t.Fatalf("resolveResource(%q) error = %v", tt.target, err)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Fatalf("resolveResource(%q) output = %q, want %q", tt.target, out.String(), tt.want)
		}
	}
}

func TestResolveResourceMissingRoot(t *testing.T) {
	t.Parallel()

	app := config.Default().App
	app.ContentRoot = filepath.Join(t.TempDir(), "missing")

	if err := resolveResource(context.Background(), app, "/", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for missing content root")
	}
}

func TestVirtualRequestNormalizesTargets(t *testing.T) {
	t.Parallel()

	app := config.Default().App
	tests := map[string]string{
		"":                         "app://localhost/",
		"index.html":               "app://localhost/index.html",
		"/css/site.css":            "app://localhost/css/site.css",
		"app://localhost/a%20b.js": "app://localhost/a%20b.js",
	}

	for target, want := range tests {
		req, err := virtualRequest(app, target)
		if err != nil {
			t.Fatalf("virtualRequest(%q) error = %v", target, err)
		}
		if req.URI != want {
			t.Fatalf("virtualRequest(%q).URI = %q, want %q", target, req.URI, want)
		}
	}
}

func TestLogInboundStopsWhenBusCloses(t *testing.T) {
	t.Parallel()

	mb := bus.NewMessageBus()
	mb.TryPublishInbound(bus.InboundMessage{Content: "hello"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		logInbound(context.Background(), mb, logger.Discard())
	}()

	mb.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logInbound did not return after bus close")
	}
}

func TestRunServeFailsWithoutContentRoot(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.App.ContentRoot = filepath.Join(t.TempDir(), "missing")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := runServe(ctx, cancel, cfg, false, logger.Discard()); err == nil {
		t.Fatal("expected error for missing content root")
	}
}
