package logger

import (
	"io"
	"log/slog"

	"github.com/alkime/memo/internal/config"
)

// Level determines the log level from configuration.
func Level(cfg *config.Config) slog.Level {
	logLevel := slog.LevelInfo
	if cfg.Env == "development" {
		logLevel = slog.LevelDebug
	}
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}

	return logLevel
}

// SetupLogger configures structured JSON logging to w and installs it as
// the default logger.
func SetupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	//nolint:exhaustruct // Using default values for other HandlerOptions fields
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: Level(cfg),
	})

	logger := slog.New(handler)

	// Set as default logger
	slog.SetDefault(logger)

	return logger
}

// SetupCLILogger configures text logging for one-shot commands.
func SetupCLILogger(cfg *config.Config, w io.Writer) *slog.Logger {
	//nolint:exhaustruct // Using default values for other HandlerOptions fields
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: Level(cfg),
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
