// Package logger builds the process logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Options struct {
	Level  string    // trace, debug, info, warn, error; empty means info
	Format string    // json or text
	File   string    // append to this file instead of Writer
	Writer io.Writer // defaults to stderr
}

// New returns a logger and a close function for the log file, if any.
func New(opts Options) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = l
	}

	closer := func() error { return nil }
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = f.Close
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatJSON:
	case FormatText:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: opts.File != ""}
	default:
		return zerolog.Nop(), nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), closer, nil
}

// WithComponent tags every event of log with the component name.
func WithComponent(log zerolog.Logger, component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
