// Package logging routes structured JSON logs to a rotating file so they
// never interleave with command output. Debug mode mirrors records to
// stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config describes where and how verbosely to log.
type Config struct {
	// Level is the minimum level recorded: debug, info, warn, or error.
	Level string
	// FilePath is the log file. Its directory is created on demand.
	FilePath string
	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int
	// MaxFiles bounds how many rotated files are kept.
	MaxFiles int
	// WriteToStderr mirrors records to stderr, used in debug mode.
	WriteToStderr bool
}

// DefaultConfig logs info and above to the per-user log file.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		FilePath:  DefaultLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
	}
}

// DebugConfig lowers the level to debug and mirrors records to stderr.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.WriteToStderr = true
	return cfg
}

// Setup builds a JSON logger per cfg. The returned cleanup flushes and
// closes the log file and must run before exit.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	file, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = file
	if cfg.WriteToStderr {
		out = io.MultiWriter(file, os.Stderr)
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}))

	cleanup := func() {
		_ = file.Sync()
		_ = file.Close()
	}
	return logger, cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
