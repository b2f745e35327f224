package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel accepts error, warn|warning, info (or empty) and debug.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info", "":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", s)
	}
}

// Format selects the slog handler.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatColor Format = "color"
)

// ParseFormat accepts text (or empty), json, and color|colour.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colour":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("invalid logging format: %s (valid: text, json, color)", s)
	}
}

// Logger wraps slog.Logger with the level it was built for and the masker its handler uses.
type Logger struct {
	*slog.Logger
	level  LogLevel
	masker *Masker
}

// NewLoggerTo builds a logger writing to w. Every handler masks secrets through the masker.
func NewLoggerTo(w io.Writer, level LogLevel, format Format) *Logger {
	masker := GetGlobalMasker()
	opts := &slog.HandlerOptions{
		Level: level.ToSlogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return maskAttr(masker, a)
		},
	}

	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case FormatColor:
		ch := NewColorHandler(w, opts)
		ch.SetMasker(masker)
		h = ch
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h), level: level, masker: masker}
}

// NewLogger creates a text logger on stdout.
func NewLogger(level LogLevel) *Logger { return NewLoggerTo(os.Stdout, level, FormatText) }

// NewJSONLogger creates a JSON logger on stdout.
func NewJSONLogger(level LogLevel) *Logger { return NewLoggerTo(os.Stdout, level, FormatJSON) }

// NewColorLogger creates a colorized logger on stdout.
func NewColorLogger(level LogLevel) *Logger { return NewLoggerTo(os.Stdout, level, FormatColor) }

func maskAttr(m *Masker, a slog.Attr) slog.Attr {
	if !m.IsEnabled() {
		return a
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, m.MaskValue(a.Key, a.Value.String()).(string))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok && err != nil {
			return slog.String(a.Key, m.MaskString(err.Error()))
		}
	}
	if m.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskedValue)
	}
	return a
}

// Level returns the current log level
func (l *Logger) Level() LogLevel { return l.level }

// EnableMasking toggles secret masking for this logger's handler.
func (l *Logger) EnableMasking(enabled bool) {
	if l.masker != nil {
		l.masker.SetEnabled(enabled)
	}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level, masker: l.masker}
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }

// WithStep returns a logger tagged with a provisioning step
func (l *Logger) WithStep(step string) *Logger { return l.with("step", step) }

// WithApp returns a logger tagged with the function app being provisioned
func (l *Logger) WithApp(app string) *Logger { return l.with("app", app) }

// WithRun returns a logger tagged with a provisioning run id
func (l *Logger) WithRun(runID string) *Logger { return l.with("run_id", runID) }

// WithStore returns a logger with store context
func (l *Logger) WithStore(storeType string) *Logger { return l.with("store", storeType) }

// WithRequest returns a logger with HTTP request context
func (l *Logger) WithRequest(method, url string) *Logger {
	return l.with("method", method, "url", url)
}

var defaultLogger = NewLoggerTo(os.Stderr, LogLevelInfo, FormatText)

// SetDefaultLogger sets the process default logger
func SetDefaultLogger(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLogger returns the process default logger
func GetLogger() *Logger { return defaultLogger }
