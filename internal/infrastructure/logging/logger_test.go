package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/weft-home/weft/internal/infrastructure/config"
)

// bufferLogger builds a Logger over a buffer so tests can read the
// records back.
func bufferLogger(cfg config.LoggingConfig) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := newHandler(cfg, &buf).WithAttrs([]slog.Attr{
		slog.String("service", "weft"),
		slog.String("version", "0.0.0-test"),
	})
	return &Logger{Logger: slog.New(handler)}, &buf
}

func TestRecordCarriesServiceFields(t *testing.T) {
	log, buf := bufferLogger(config.LoggingConfig{Level: "info", Format: "json"})
	log.Info("lamp hosted", "endpoint", "lamp-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["service"] != "weft" {
		t.Errorf("service = %v, want weft", record["service"])
	}
	if record["version"] != "0.0.0-test" {
		t.Errorf("version = %v, want 0.0.0-test", record["version"])
	}
	if record["msg"] != "lamp hosted" || record["endpoint"] != "lamp-1" {
		t.Errorf("record = %v, missing message or attribute", record)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	log, buf := bufferLogger(config.LoggingConfig{Level: "info", Format: "json"})

	log.Debug("suppressed")
	if buf.Len() != 0 {
		t.Errorf("debug record emitted at info level: %q", buf.String())
	}
	log.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn record suppressed at info level")
	}
}

func TestTextFormat(t *testing.T) {
	log, buf := bufferLogger(config.LoggingConfig{Level: "info", Format: "text"})
	log.Info("hello")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %q", out)
	}
	if !strings.Contains(out, "msg=hello") {
		t.Errorf("output %q missing msg=hello", out)
	}
}

func TestWithAddsComponentAttribute(t *testing.T) {
	log, buf := bufferLogger(config.LoggingConfig{Level: "info", Format: "json"})

	child := log.With("component", "mqtt")
	if child == log {
		t.Fatal("With() returned the parent logger")
	}
	child.Info("connected")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["component"] != "mqtt" {
		t.Errorf("component = %v, want mqtt", record["component"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDefaultIsUsableBeforeConfig(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}
