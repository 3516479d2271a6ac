// Package logging configures the process logger: a human-readable console
// stream plus JSON lines in a timestamped file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLevel overrides the log level when no level is passed explicitly.
const EnvLevel = "SCRCPY_MANAGER_LOG_LEVEL"

// FileTimeFormat names log files, e.g. log/2025-12-08_21-52-35.log.
const FileTimeFormat = "2006-01-02_15-04-05"

type Options struct {
	// Dir receives the log file. Empty disables file logging.
	Dir   string
	Level string
	// Console receives the human-readable stream. Nil disables it.
	Console io.Writer
	NoColor bool
}

// Setup builds the logger. The returned file, if any, is owned by the caller.
func Setup(opts Options) (zerolog.Logger, *os.File, error) {
	level := opts.Level
	if level == "" {
		level = os.Getenv(EnvLevel)
	}

	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor,
		})
	}

	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		path := filepath.Join(opts.Dir, time.Now().Format(FileTimeFormat)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	if len(writers) == 0 {
		return zerolog.Nop(), nil, nil
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(level)).
		With().Timestamp().Logger()
	if file != nil {
		logger.Debug().Str("path", file.Name()).Msg("Logging to file")
	}
	return logger, file, nil
}

// ParseLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
