package app

import (
	"fmt"
	"io"
	"log/slog"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the per-run logger writing to the given writer. It never
// touches the global logger and rejects unknown levels and formats rather
// than silently falling back.
func newLogger(level, format string, outW io.Writer) (*slog.Logger, error) {
	lvl, ok := logLevels[level]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(outW, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(outW, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
