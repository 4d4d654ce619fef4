package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to info.
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

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	level Level
	color bool
}

// NewLogger creates a new Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return &Logger{out: os.Stdout, err: os.Stderr, level: LevelInfo, color: true}
}

// NewWriterLogger sends every level to w without color codes. Used by tests
// and when output is redirected to a file.
func NewWriterLogger(w io.Writer, level Level) *Logger {
	return &Logger{out: w, err: w, level: level}
}

// SetLevel changes the minimum level that is printed.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) write(level Level, tag, color string, w io.Writer, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}
	if l.color {
		tag = color + tag + "\033[0m"
	}
	fmt.Fprintf(w, "[%s] %s %s\n", l.timestamp(), tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.write(LevelInfo, "INFO ", "\033[32m", l.out, format, args...)
}

// Success is an info-level line for a completed step.
func (l *Logger) Success(format string, args ...any) {
	l.write(LevelInfo, "OK   ", "\033[1;32m", l.out, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.write(LevelWarn, "WARN ", "\033[33m", l.out, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.write(LevelError, "ERROR", "\033[31m", l.err, format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.write(LevelDebug, "DEBUG", "\033[36m", l.out, format, args...)
}
