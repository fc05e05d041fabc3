package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"hostbridge/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	Component(log, "resource.handler").Warn("Resource request failed", "uri", "app://localhost/missing.js", "status", 404, "error", errors.New("not_found"))

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "warn" {
		t.Fatalf("level = %q, want %q", entry.Level, "warn")
	}
	if entry.Component != "resource.handler" {
		t.Fatalf("component = %q, want %q", entry.Component, "resource.handler")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["uri"]; got != "app://localhost/missing.js" {
		t.Fatalf("fields.uri = %v", got)
	}
	if got := entry.Fields["status"]; got != float64(404) {
		t.Fatalf("fields.status = %v, want 404", got)
	}
	if got := entry.Fields["error"]; got != "not_found" {
		t.Fatalf("fields.error = %v, want %q", got, "not_found")
	}
}

func TestLoggerGroupedFields(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.WithGroup("request").Info("Served", "path", "/index.html")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if got := entry.Fields["request.path"]; got != "/index.html" {
		t.Fatalf("fields[request.path] = %v", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envLogFormat, "text")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerRejectsUnknownSettings(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := newWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestComponentLevelOverrides(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{
		Format: "json",
		Level:  "info",
		Components: map[string]string{
			"devhost.server": "debug",
			"bridge.manager": "error",
		},
	}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	Component(log, "devhost.server").Debug("Request", "path", "/app.js")
	Component(log, "bridge.manager").Warn("Dropped")
	Component(log, "resource.handler").Info("Served")
	Component(log, "resource.handler").Debug("Hidden")
	log.Debug("Untagged")

	var got []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		got = append(got, entry.Component+":"+entry.Message)
	}

	want := []string{"devhost.server:Request", "resource.handler:Served"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %q, want %q", got, want)
	}
}

func TestComponentLevelsFromEnvironment(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv(envLogComponents, "devhost.server=debug, ")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text", Level: "warn"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	Component(log, "bridge.manager").Info("Quiet")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for bridge.manager info, got %q", got)
	}

	Component(log, "devhost.server").Debug("Page connected")
	if !strings.Contains(out.String(), "Page connected") {
		t.Fatalf("output = %q, want debug line from devhost.server", out.String())
	}
}

func TestComponentLevelsRejectBadEntries(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := newWithWriter(config.LoggingConfig{Components: map[string]string{"devhost.server": "loud"}}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown component level")
	}
	if _, err := newWithWriter(config.LoggingConfig{Components: map[string]string{" ": "debug"}}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for empty component name")
	}

	t.Setenv(envLogComponents, "devhost.server")
	if _, err := newWithWriter(config.LoggingConfig{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for entry without a level")
	}
}

func TestDiscardDropsEverything(t *testing.T) {
	t.Parallel()

	log := Discard()
	if log.Enabled(t.Context(), 12) {
		t.Fatal("expected discard logger to be disabled at every level")
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envLogLevel, envLogFormat, envLogAddSource, envLogComponents} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
