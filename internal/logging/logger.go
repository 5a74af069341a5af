// Package logging provides the leveled, optionally colored logger passed to
// every mcporter component.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// DefaultLevel is used when neither --log-level nor MCPORTER_LOG_LEVEL is set.
const DefaultLevel = LevelWarn

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name. Matching is case-insensitive and accepts
// "warning" as an alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return DefaultLevel, fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", s)
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
)

// Logger writes leveled messages. All methods are safe on a nil *Logger.
type Logger struct {
	mu          sync.Mutex
	level       Level
	useColor    bool
	jsonRPCMode bool
	writer      io.Writer
}

// NewLogger creates a logger writing to stderr.
func NewLogger(level Level, useColor, jsonRPC bool) *Logger {
	return NewLoggerWithWriter(level, useColor, jsonRPC, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(level Level, useColor, jsonRPC bool, w io.Writer) *Logger {
	if os.Getenv("NO_COLOR") != "" {
		useColor = false
	}
	return &Logger{
		level:       level,
		useColor:    useColor,
		jsonRPCMode: jsonRPC,
		writer:      w,
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewLoggerWithWriter(LevelError+1, false, false, io.Discard)
}

// SetLevel changes the threshold.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetVerbose switches between debug output and the default threshold.
func (l *Logger) SetVerbose(verbose bool) {
	if verbose {
		l.SetLevel(LevelDebug)
		return
	}
	l.SetLevel(DefaultLevel)
}

// SetColor toggles ANSI colors. NO_COLOR still wins.
func (l *Logger) SetColor(useColor bool) {
	if l == nil {
		return
	}
	if os.Getenv("NO_COLOR") != "" {
		useColor = false
	}
	l.mu.Lock()
	l.useColor = useColor
	l.mu.Unlock()
}

// SetJSONRPC toggles full payload tracing.
func (l *Logger) SetJSONRPC(enabled bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.jsonRPCMode = enabled
	l.mu.Unlock()
}

// Level returns the current threshold.
func (l *Logger) Level() Level {
	if l == nil {
		return DefaultLevel
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetWriter redirects output.
func (l *Logger) SetWriter(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.Level()
}

func (l *Logger) log(level Level, color, prefix, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("15:04:05")

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.useColor && color != "" {
		fmt.Fprintf(l.writer, "%s[%s]%s %s%s%s%s\n", colorGray, ts, colorReset, color, prefix, msg, colorReset)
		return
	}
	fmt.Fprintf(l.writer, "[%s] %s%s\n", ts, prefix, msg)
}

// Debug logs diagnostic detail.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, colorGray, "", format, args...)
}

// Info logs progress messages.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, colorBlue, "", format, args...)
}

// Success logs a completed step at info level.
func (l *Logger) Success(format string, args ...interface{}) {
	l.log(LevelInfo, colorGreen, "", format, args...)
}

// Warning logs recoverable problems.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(LevelWarn, colorYellow, "warning: ", format, args...)
}

// Error logs failures.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, colorRed, "error: ", format, args...)
}

// Request traces an outgoing JSON-RPC request at debug level.
func (l *Logger) Request(method string, params interface{}) {
	l.trace("→", method, params)
}

// Response traces a JSON-RPC response at debug level.
func (l *Logger) Response(method string, result interface{}) {
	l.trace("←", method, result)
}

// Notification traces an incoming notification at debug level.
func (l *Logger) Notification(method string, params interface{}) {
	l.trace("⇐", method, params)
}

func (l *Logger) trace(arrow, method string, payload interface{}) {
	if !l.Enabled(LevelDebug) {
		return
	}
	l.mu.Lock()
	full := l.jsonRPCMode
	l.mu.Unlock()
	if !full || payload == nil {
		l.log(LevelDebug, colorCyan, "", "%s %s", arrow, method)
		return
	}
	l.log(LevelDebug, colorCyan, "", "%s %s %s", arrow, method, PrettyJSON(payload))
}

// PrettyJSON pretty-prints v for logs and terminal output.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
