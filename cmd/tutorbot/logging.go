package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// newLogger builds the process logger from the logging.* viper keys.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(viper.GetString("logging.level"))) {
	case "", "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown logging.level: %s", viper.GetString("logging.level"))
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: viper.GetBool("logging.add_source"),
	}

	format := strings.ToLower(strings.TrimSpace(viper.GetString("logging.format")))
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", format)
	}
}
