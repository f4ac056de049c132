package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerJSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "doc-api", "info", "json")
	logger.Info("ingested", "count", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "doc-api" {
		t.Fatalf("expected service attribute, got %v", entry["service"])
	}
	if entry["msg"] != "ingested" {
		t.Fatalf("expected message, got %v", entry["msg"])
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "doc-worker", "debug", "text")
	logger.Debug("summary refreshed", "n", 6)

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected text output, got json: %q", out)
	}
	if !strings.Contains(out, "summary refreshed") || !strings.Contains(out, "service=doc-worker") {
		t.Fatalf("unexpected text output %q", out)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "doc-api", "warn", "json")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
