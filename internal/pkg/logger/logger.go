// Package logger is the process-wide structured logger. Entries are JSON
// (zap's production encoder) on stderr, with email addresses redacted from
// field values unless redaction is switched off.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var zapLevels = map[Level]zapcore.Level{
	DEBUG: zapcore.DebugLevel,
	INFO:  zapcore.InfoLevel,
	WARN:  zapcore.WarnLevel,
	ERROR: zapcore.ErrorLevel,
}

var (
	mu        sync.RWMutex
	base      *zap.Logger
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	redactPII atomic.Bool
)

func init() {
	redactPII.Store(true)
	base = build(os.Stderr)
}

func build(w io.Writer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.MessageKey = "msg"
	enc.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// SetLevel sets the minimum log level.
func SetLevel(l Level) {
	if zl, ok := zapLevels[l]; ok {
		level.SetLevel(zl)
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level, defaulting
// to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetRedactPII enables or disables PII redaction.
func SetRedactPII(r bool) { redactPII.Store(r) }

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = build(w)
}

// Z returns the underlying zap logger for components that log with typed
// zap fields. Those fields are not redacted.
func Z() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered entries.
func Sync() { _ = Z().Sync() }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { write(zapcore.DebugLevel, msg, fields) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { write(zapcore.InfoLevel, msg, fields) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { write(zapcore.WarnLevel, msg, fields) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { write(zapcore.ErrorLevel, msg, fields) }

func write(lvl zapcore.Level, msg string, fields []interface{}) {
	ce := Z().Check(lvl, msg)
	if ce == nil {
		return
	}

	redact := redactPII.Load()
	zf := make([]zap.Field, 0, len(fields)/2)
	// Parse key-value pairs from fields
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if redact {
			val = redactPIIValue(key, val)
		}
		zf = append(zf, zap.String(key, val))
	}
	ce.Write(zf...)
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "raw") {
		return RedactEmail(val)
	}
	// Redact any embedded emails in generic fields
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
