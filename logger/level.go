// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"log/slog"
	"strings"
)

// levelDisable sits above every level the logger emits.
const levelDisable = slog.Level(99)

// Level is the process-wide minimum severity. It applies to every Logger.
var Level = &level{lvl: &slog.LevelVar{}}

type level struct {
	lvl *slog.LevelVar
}

func (l *level) Enabled(level slog.Level) bool {
	return level >= l.lvl.Level()
}

func (l *level) Set(level slog.Level) {
	l.lvl.Set(level)
}

// SetByName sets the level from its config-file name. Unknown names leave the
// level unchanged.
func (l *level) SetByName(level string) {
	switch strings.ToLower(level) {
	case "err", "error":
		l.lvl.Set(slog.LevelError)
	case "warn", "warning":
		l.lvl.Set(slog.LevelWarn)
	case "info":
		l.lvl.Set(slog.LevelInfo)
	case "debug":
		l.lvl.Set(slog.LevelDebug)
	case "off", "disable":
		l.lvl.Set(levelDisable)
	}
}
