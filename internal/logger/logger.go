// Package logger wraps logrus behind the small surface the rest of the
// pipeline uses. Output goes to stderr, and additionally to a file when one
// is configured.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	constants "logamizer/config"
)

// Logger handles centralized structured logging.
type Logger struct {
	log     *logrus.Logger
	logFile *os.File
}

// New creates a logger writing to stderr and, when filePath is non-empty and
// openable, to that file as well.
func New(filePath string) *Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetLevel(logrus.InfoLevel)

	logger := &Logger{log: l}

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			logger.logFile = f
			l.SetOutput(io.MultiWriter(os.Stderr, f))
		}
	}

	return logger
}

// Default returns a logger with default settings.
func Default() *Logger {
	return New(constants.LOG_FILE)
}

// SetDebug enables debug-level output.
func (l *Logger) SetDebug(on bool) {
	if on {
		l.log.SetLevel(logrus.DebugLevel)
	} else {
		l.log.SetLevel(logrus.InfoLevel)
	}
}

// WithFields attaches structured fields to the next entry.
func (l *Logger) WithFields(fields map[string]any) *logrus.Entry {
	return l.log.WithFields(logrus.Fields(fields))
}

// Close closes the log file.
func (l *Logger) Close() {
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
}

// Info logs an informational message.
func (l *Logger) Info(message string, args ...any) {
	l.log.Infof(message, args...)
}

// Warning logs a warning message.
func (l *Logger) Warning(message string, args ...any) {
	l.log.Warnf(message, args...)
}

// Error logs an error message.
func (l *Logger) Error(message string, args ...any) {
	l.log.Errorf(message, args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, args ...any) {
	l.log.Debugf(message, args...)
}

// Global logger instance for convenience
var defaultLogger = Default()

// Info logs an informational message using the default logger.
func Info(message string, args ...any) {
	defaultLogger.Info(message, args...)
}

// Warning logs a warning message using the default logger.
func Warning(message string, args ...any) {
	defaultLogger.Warning(message, args...)
}

// Error logs an error message using the default logger.
func Error(message string, args ...any) {
	defaultLogger.Error(message, args...)
}

// Debug logs a debug message using the default logger.
func Debug(message string, args ...any) {
	defaultLogger.Debug(message, args...)
}

// WithFields attaches structured fields using the default logger.
func WithFields(fields map[string]any) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}
