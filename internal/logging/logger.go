/**
 * Leveled Logger for ErrorScope Analysis Worker
 *
 * Key-value logging for long-lived components. Pipeline entries go through a
 * job-scoped logger so every line carries the [Job %s] marker the worker's
 * logs are grepped by. The minimum level is process-wide, set once at
 * startup from LOG_LEVEL.
 */

package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level orders log severities
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel = int32(LevelInfo)

// SetLevel sets the process-wide minimum level
func SetLevel(l Level) {
	atomic.StoreInt32(&minLevel, int32(l))
}

// ParseLevel maps a configuration string to a level. Unknown values fall
// back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes leveled key-value lines for one component
type Logger struct {
	component string
	jobID     string
	logger    *log.Logger
}

// NewLogger creates a logger for the named component
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
	}
}

// WithJob returns a logger whose lines carry the job id
func (l *Logger) WithJob(jobID string) *Logger {
	return &Logger{component: l.component, jobID: jobID, logger: l.logger}
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelDebug, msg, keysAndValues...)
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelInfo, msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelWarn, msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelError, msg, keysAndValues...)
}

func (l *Logger) logWithKV(level Level, msg string, keysAndValues ...interface{}) {
	if int32(level) < atomic.LoadInt32(&minLevel) {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s]", l.component, level)
	if l.jobID != "" {
		fmt.Fprintf(&b, " [Job %s]", l.jobID)
	}
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Print(b.String())
}
