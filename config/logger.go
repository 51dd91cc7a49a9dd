package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// SetupLogger builds the logger described by cfg. Without a log file it
// writes to fallback. The returned closer is nil unless a file was opened.
func SetupLogger(cfg Log, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level

	switch cfg.Level {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}

	if cfg.File == "" {
		return slog.New(slog.NewTextHandler(fallback, opts)), nil, nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return slog.New(slog.NewTextHandler(file, opts)), file, nil
}
