package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/weft-home/weft/internal/infrastructure/config"
)

// Logger is the node-wide structured logger, an slog.Logger carrying
// the service name and version on every record. Safe for concurrent
// use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the config. Format
// is "json" or "text" (json when unrecognised), output "stdout" or
// "stderr", level one of debug, info, warn, error.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg, writerFor(cfg.Output)).WithAttrs([]slog.Attr{
		slog.String("service", "weft"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default is the pre-config logger for early startup: JSON to stdout
// at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// With returns a Logger that adds the given key-value pairs to every
// record. Components take their own child logger this way, for
// example With("component", "mqtt").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func newHandler(cfg config.LoggingConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func writerFor(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel falls back to info rather than failing: a typo in the
// config should not silence the node.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
