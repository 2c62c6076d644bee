// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

var isTerm = isatty.IsTerminal(os.Stderr.Fd())

var isJournal = isStderrConnectedToJournal()

// New creates a new logger.
func New() *Logger {
	if isTerm {
		// skip 2 slog pkg calls, 2 this pkg calls
		return &Logger{sl: slog.New(withCallDepth(4, newTerminalHandler()))}
	}
	return &Logger{sl: slog.New(newTextHandler())}
}

// Logger is a structured logger backed by log/slog. The zero value and a nil
// receiver are usable: they fall back to a freshly constructed logger.
type Logger struct {
	sl *slog.Logger
}

// Error logs an error message.
func (l *Logger) Error(a ...any) { l.log(slog.LevelError, fmt.Sprint(a...)) }

// Warning logs a warning message.
func (l *Logger) Warning(a ...any) { l.log(slog.LevelWarn, fmt.Sprint(a...)) }

// Info logs an info message.
func (l *Logger) Info(a ...any) { l.log(slog.LevelInfo, fmt.Sprint(a...)) }

// Debug logs a debug message.
func (l *Logger) Debug(a ...any) { l.log(slog.LevelDebug, fmt.Sprint(a...)) }

// Errorf logs an error message, formatting its arguments.
func (l *Logger) Errorf(format string, a ...any) {
	l.log(slog.LevelError, fmt.Sprintf(format, a...))
}

// Warningf logs a warning message, formatting its arguments.
func (l *Logger) Warningf(format string, a ...any) {
	l.log(slog.LevelWarn, fmt.Sprintf(format, a...))
}

// Infof logs an info message, formatting its arguments.
func (l *Logger) Infof(format string, a ...any) {
	l.log(slog.LevelInfo, fmt.Sprintf(format, a...))
}

// Debugf logs a debug message, formatting its arguments.
func (l *Logger) Debugf(format string, a ...any) {
	l.log(slog.LevelDebug, fmt.Sprintf(format, a...))
}

// With returns a Logger that includes the given attributes in each output operation.
func (l *Logger) With(args ...any) *Logger {
	if l.isFallback() {
		return New().With(args...)
	}
	return &Logger{sl: l.sl.With(args...)}
}

func (l *Logger) log(level slog.Level, msg string) {
	if l.isFallback() {
		New().log(level, msg)
		return
	}
	l.sl.Log(context.Background(), level, msg)
}

func (l *Logger) isFallback() bool {
	return l == nil || l.sl == nil
}

var base = New()

// Error logs an error message using the base logger.
func Error(a ...any) { base.Error(a...) }

// Warning logs a warning message using the base logger.
func Warning(a ...any) { base.Warning(a...) }

// Info logs an info message using the base logger.
func Info(a ...any) { base.Info(a...) }

// Debug logs a debug message using the base logger.
func Debug(a ...any) { base.Debug(a...) }

// Errorf logs an error message using the base logger, formatting its arguments.
func Errorf(format string, a ...any) { base.Errorf(format, a...) }

// Warningf logs a warning message using the base logger, formatting its arguments.
func Warningf(format string, a ...any) { base.Warningf(format, a...) }

// Infof logs an info message using the base logger, formatting its arguments.
func Infof(format string, a ...any) { base.Infof(format, a...) }

// Debugf logs a debug message using the base logger, formatting its arguments.
func Debugf(format string, a ...any) { base.Debugf(format, a...) }
