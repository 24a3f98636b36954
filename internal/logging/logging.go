// Package logging builds the zerolog logger shared by geopol components.
//
// The terminal belongs to the TUI, so log output goes to a file unless a
// writer is supplied explicitly.
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

// Options controls logger construction
type Options struct {
	Level   string
	File    string
	Writer  io.Writer
	NoColor bool
}

// ParseLevel converts a config level string to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger. The returned closer releases the log file, if one was opened.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	out := opts.Writer
	var closer io.Closer = nopCloser{}

	if out == nil {
		if opts.File == "" {
			out = os.Stderr
		} else {
			if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
				return zerolog.Nop(), closer, fmt.Errorf("failed to create log directory: %w", err)
			}
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return zerolog.Nop(), closer, fmt.Errorf("failed to open log file: %w", err)
			}
			out = f
			closer = f
			opts.NoColor = true
		}
	}

	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(writer).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()

	logger.Debug().Str("level", ParseLevel(opts.Level).String()).Msg("Logging initialized")
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
