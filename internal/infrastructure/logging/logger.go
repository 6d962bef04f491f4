package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
)

const serviceName = "airlink"

const redacted = "[REDACTED]"

// sensitiveKeys never reach the output, whatever their value.
var sensitiveKeys = map[string]struct{}{
	"credential":    {},
	"password":      {},
	"secret":        {},
	"client_secret": {},
	"token":         {},
	"access_token":  {},
}

// Logger is a slog.Logger carrying service and version on every record.
type Logger struct {
	*slog.Logger
}

// New creates a Logger for the configured output: stdout (default),
// stderr or discard.
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		out = os.Stderr
	case "discard":
		out = io.Discard
	}
	return NewWithWriter(cfg, version, out)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	}))}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ForAppliance scopes a logger to one appliance.
//
//	log.ForAppliance("NN2-EU-KJA1234A", "455").Info("connected")
func (l *Logger) ForAppliance(id, model string) *Logger {
	return l.With(slog.Group("appliance", slog.String("id", id), slog.String("model", model)))
}

// Default is used until configuration has been loaded: JSON on stdout at
// info level.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "dev", os.Stdout)
}
