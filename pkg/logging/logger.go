// Package logging provides structured debug logging for Strata components.
// All logs are written to a session-specific file in ~/.strata/logs/; if
// the file cannot be opened the logger falls back to stderr.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var (
	// sessionID identifies the current process in log file names.
	sessionID     string
	sessionIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error
)

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("logging: home directory: %w", err)
			return
		}
		logDir = filepath.Join(homeDir, ".strata", "logs")
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			initErr = fmt.Errorf("logging: create log directory: %w", err)
		}
	})
	return initErr
}

// Logger wraps slog with a per-component attribute and a session log file.
type Logger struct {
	component string
	slog      *slog.Logger
	file      *os.File
	logPath   string
	closeOnce sync.Once
}

// NewLogger creates a logger for a component, writing to
// ~/.strata/logs/<session-id>-strata.log. If the log file cannot be
// opened it returns a stderr logger along with the error so callers can
// detect fallback mode.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component), err
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("%s-strata.log", getSessionID()))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return newFallbackLogger(component), fmt.Errorf("logging: open log file: %w", err)
	}

	handler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{
		component: component,
		slog:      slog.New(handler).With("component", component, "session", getSessionID()),
		file:      file,
		logPath:   logPath,
	}, nil
}

func newFallbackLogger(component string) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{
		component: component,
		slog:      slog.New(handler).With("component", component),
	}
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.slog.Debug(fmt.Sprintf(format, v...))
}

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.slog.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.slog.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.slog.Error(fmt.Sprintf(format, v...))
}

// LogPath returns the path of the session log file, or empty in fallback
// mode.
func (l *Logger) LogPath() string { return l.logPath }

// SessionID returns the process-wide session ID.
func (l *Logger) SessionID() string { return getSessionID() }

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
