// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps the standard log package to provide level-based filtering and either
// plain-text or JSON-line output.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel logs solver retries and per-stage detail.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs recoverable problems such as a model falling back to sentinel values.
	WarnLevel
	// ErrorLevel logs failed runs and failed notifications.
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging
type Logger struct {
	level  Level
	json   bool
	logger *log.Logger
	mu     sync.Mutex
	out    io.Writer
}

var (
	// Global logger instance
	defaultLogger *Logger
)

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	InitWithWriter(level, format, os.Stderr)
}

// InitWithWriter initializes the default logger writing to w.
func InitWithWriter(level string, format string, w io.Writer) {
	jsonFormat := strings.ToLower(format) == "json"
	flags := log.LstdFlags | log.Lmicroseconds
	if jsonFormat {
		flags = 0
	}
	defaultLogger = &Logger{
		level:  ParseLevel(level),
		json:   jsonFormat,
		logger: log.New(w, "", flags),
		out:    w,
	}
}

func (l *Logger) emit(level Level, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	l.write(levelNames[level], fmt.Sprintf(format, args...))
}

// write prints one line under label, bypassing level filtering.
func (l *Logger) write(label, msg string) {
	if !l.json {
		_ = l.logger.Output(4, "["+label+"] "+msg)
		return
	}
	line, err := json.Marshal(struct {
		Time  string `json:"time"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}{time.Now().UTC().Format(time.RFC3339Nano), strings.ToLower(label), msg})
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	defaultLogger.emit(DebugLevel, format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	defaultLogger.emit(InfoLevel, format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	defaultLogger.emit(WarnLevel, format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	defaultLogger.emit(ErrorLevel, format, args...)
}

// exit is replaced in tests.
var exit = os.Exit

// Fatal logs a message regardless of level and exits
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if defaultLogger != nil {
		defaultLogger.write("FATAL", msg)
	} else {
		log.Print("[FATAL] " + msg)
	}
	exit(1)
}
