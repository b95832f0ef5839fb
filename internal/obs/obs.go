// Package obs builds the emulator's structured loggers, following
// utils/logger.go's InfoLog/ErrorLog split but as an explicit struct
// instead of package globals, consistent with the rest of the core's
// "no hidden global access" design.
package obs

import (
	"log/slog"
	"os"
)

// Loggers holds the Info and Error sinks one subsystem is handed at
// construction time.
type Loggers struct {
	Info  *slog.Logger
	Error *slog.Logger
}

// New builds a text-handler logger pair tagged with module, at the
// given level ("debug", "info", "warn", "error"; unrecognized values
// fall back to "info").
func New(level string, module string) Loggers {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	logger := slog.New(handler).With("module", module)
	return Loggers{Info: logger, Error: logger}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
