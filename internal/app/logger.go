package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON output carries source
// locations for log aggregation; the text form stays terse for local
// development.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
