// Package logging configures the application's structured loggers.
package logging

import (
	"log/slog"
	"os"
	"sync"
)

var (
	initOnce         sync.Once
	structuredLogger *slog.Logger
	levelVar         slog.LevelVar
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

func replaceLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// Init initializes the logging system with a structured JSON logger on
// stdout and installs it as the slog default. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		levelVar.Set(slog.LevelInfo)
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       &levelVar,
			ReplaceAttr: replaceLevelAttr,
		})
		structuredLogger = slog.New(handler)
		slog.SetDefault(structuredLogger)
	})
}

// SetLevel sets the minimum logging level for the structured logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// ForService returns a logger with the service name attached, so every
// record from a subsystem carries a stable "service" attribute.
func ForService(name string) *slog.Logger {
	Init()
	return structuredLogger.With("service", name)
}
