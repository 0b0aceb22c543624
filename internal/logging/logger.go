// Package logging provides structured JSON logging for the resolution
// engine.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Logger interface for structured logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	WithComponent(component string) Logger
	WithFields(fields ...interface{}) Logger
}

// LogLevel represents logging levels
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// ParseLogLevel parses a level name, defaulting to INFO.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// StructuredLogger implements structured logging with JSON or text output
type StructuredLogger struct {
	level     LogLevel
	component string
	fields    map[string]any
	useJSON   bool
}

// NewLogger creates a new structured logger. Format is "json" or "text".
func NewLogger(level LogLevel, format string) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: format != "text",
	}
}

// WithComponent creates a new logger with a component name
func (l *StructuredLogger) WithComponent(component string) Logger {
	clone := *l
	clone.component = component
	return &clone
}

// WithFields creates a new logger carrying the given key/value pairs on
// every entry.
func (l *StructuredLogger) WithFields(fields ...interface{}) Logger {
	clone := *l
	clone.fields = mergeFields(l.fields, fields)
	return &clone
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, fields...)
	}
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, fields...)
	}
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, fields...)
	}
}

// Error logs an error message
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, fields...)
	}
}

func (l *StructuredLogger) logEntry(level, msg string, fields ...interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: l.component,
		Fields:    mergeFields(l.fields, fields),
	}

	if l.useJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
			return
		}
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	parts := []string{entry.Timestamp, fmt.Sprintf("[%s]", entry.Level)}
	if entry.Component != "" {
		parts = append(parts, "component:"+entry.Component)
	}
	parts = append(parts, entry.Message)
	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	fmt.Fprintln(os.Stderr, strings.Join(parts, " "))
}

// mergeFields folds variadic key/value pairs into a copy of base.
func mergeFields(base map[string]any, fields []interface{}) map[string]any {
	if len(base) == 0 && len(fields) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(fields)/2)
	for k, v := range base {
		merged[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		merged[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}
	if len(fields)%2 == 1 {
		merged["field"] = fields[len(fields)-1]
	}
	return merged
}

// NewNoop returns a logger that discards everything, for tests.
func NewNoop() Logger {
	return &noopLogger{}
}

type noopLogger struct{}

func (n *noopLogger) Debug(string, ...interface{})     {}
func (n *noopLogger) Info(string, ...interface{})      {}
func (n *noopLogger) Warn(string, ...interface{})      {}
func (n *noopLogger) Error(string, ...interface{})     {}
func (n *noopLogger) WithComponent(string) Logger      { return n }
func (n *noopLogger) WithFields(...interface{}) Logger { return n }
