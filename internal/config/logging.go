package config

import (
	"log/slog"
	"os"
)

// NewLogger builds a structured slog.Logger the way
// 0xtitan6-polymarket-mm/cmd/bot/main.go does: JSON or text handler
// selected by config, level parsed from a string. Every component
// takes the resulting *slog.Logger as an explicit constructor
// argument rather than reaching for the package-level default logger.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
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
