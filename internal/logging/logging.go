// Package logging configures the process-wide slog logger. Output is JSON
// to stdout, or to a size-rotated file when a log path is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var levelVar = new(slog.LevelVar)

// Setup builds the default logger. An empty path logs to stdout; otherwise
// the file at path is rotated at 100 MB with three kept backups.
func Setup(level, path string) (*slog.Logger, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}
	if err := levelVar.UnmarshalText([]byte(normalized)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var sink io.Writer = os.Stdout
	if path != "" {
		sink = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 3,
			Compress:   true,
		}
	}

	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)
	return logger, nil
}
