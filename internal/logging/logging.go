// Package logging sets up the process-wide structured logger: log/slog
// writing JSON records, rotated by lumberjack when a log file path is
// configured, falling back to stderr for interactive use.
//
// Grounded on untoldecay-BeadsLog's go.mod dependency on
// gopkg.in/natefinch/lumberjack.v2 (the teacher's daemon process runs
// long-lived and needs rotated logs rather than an ever-growing file);
// this package wires that same dependency to log/slog's JSON handler,
// the standard-library structured logger, rather than a third-party
// logging framework the pack doesn't otherwise reach for.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Path is the log file to write to and rotate. Empty means stderr.
	Path string
	// Level is one of "debug", "info", "warn", "error"; defaults to info.
	Level string
	// MaxSizeMB is lumberjack's per-file size cap before rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files lumberjack retains.
	MaxBackups int
}

// New builds the process-wide slog.Logger per opts.
func New(opts Options) *slog.Logger {
	var w io.Writer = os.Stderr
	if opts.Path != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		w = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		}
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
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
