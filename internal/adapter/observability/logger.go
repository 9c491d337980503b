package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"
)

// Logger provides structured logging for sync operations.
type Logger interface {
	Debug(message string, fields map[string]any)
	Info(message string, fields map[string]any)
	Warn(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}

// LogLevel defines the logging verbosity level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLevel maps a config string to a LogLevel. Unknown values mean info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogFormat defines the output format for logs.
type LogFormat int

const (
	LogFormatHuman LogFormat = iota
	LogFormatJSON
)

// DetectFormat resolves the configured format string, falling back to TTY
// detection: human-readable on a terminal, JSON when output is piped or
// captured by a scheduler.
func DetectFormat(configured string) LogFormat {
	switch strings.ToLower(configured) {
	case "json":
		return LogFormatJSON
	case "human":
		return LogFormatHuman
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return LogFormatHuman
	}
	return LogFormatJSON
}

// DefaultLogger writes leveled logs to standard error.
type DefaultLogger struct {
	level      LogLevel
	format     LogFormat
	redactKeys bool
}

// NewDefaultLogger creates a logger with the specified config.
func NewDefaultLogger(level LogLevel, format LogFormat, redactKeys bool) *DefaultLogger {
	return &DefaultLogger{
		level:      level,
		format:     format,
		redactKeys: redactKeys,
	}
}

// Debug logs a debug message with structured fields.
func (l *DefaultLogger) Debug(message string, fields map[string]any) {
	l.emit(LogLevelDebug, "debug", message, fields)
}

// Info logs an informational message with structured fields.
func (l *DefaultLogger) Info(message string, fields map[string]any) {
	l.emit(LogLevelInfo, "info", message, fields)
}

// Warn logs a warning message with structured fields.
func (l *DefaultLogger) Warn(message string, fields map[string]any) {
	l.emit(LogLevelWarn, "warn", message, fields)
}

// Error logs an error message with structured fields.
func (l *DefaultLogger) Error(message string, fields map[string]any) {
	l.emit(LogLevelError, "error", message, fields)
}

func (l *DefaultLogger) emit(level LogLevel, name, message string, fields map[string]any) {
	if level < l.level {
		return
	}

	if l.format == LogFormatJSON {
		entry := map[string]any{
			"level":     name,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"message":   message,
		}
		for k, v := range fields {
			entry[k] = l.redactField(k, v)
		}
		line, err := json.Marshal(entry)
		if err != nil {
			log.Printf(`{"level":"error","message":"failed to encode log entry: %v"}`, err)
			return
		}
		log.Print(string(line))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", strings.ToUpper(name), message)
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&sb, " %s=%v", k, l.redactField(k, fields[k]))
	}
	log.Print(sb.String())
}

func (l *DefaultLogger) redactField(key string, value any) any {
	if !l.redactKeys {
		return value
	}
	lowered := strings.ToLower(key)
	if strings.Contains(lowered, "api_key") || strings.Contains(lowered, "apikey") {
		if s, ok := value.(string); ok {
			return RedactAPIKey(s)
		}
	}
	return value
}

// RedactAPIKey shows only the last 4 characters of an API key with explicit
// redaction markers.
func RedactAPIKey(key string) string {
	if len(key) <= 4 {
		return "[REDACTED]"
	}
	return fmt.Sprintf("[REDACTED-%s]", key[len(key)-4:])
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NopLogger discards all log output. Useful in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
