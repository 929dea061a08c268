// Package logger builds the *slog.Logger values used across chatstream.
//
// Commands log to the terminal through Console and, with --log-file, to a
// JSON file opened by OpenFile. Library packages take a *slog.Logger in their
// Config and fall back to Nop.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level  slog.Level
	pretty bool
	json   bool
	writer io.Writer
	source bool
}

// New returns a logger writing text records to os.Stdout at Info level
// unless opts say otherwise.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:  slog.LevelInfo,
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.pretty:
		h := charmlog.NewWithOptions(c.writer, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
		})
		return slog.New(h)
	case c.json:
		return slog.New(slog.NewJSONHandler(c.writer, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		}))
	default:
		return slog.New(slog.NewTextHandler(c.writer, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		}))
	}
}

// Console returns the human-facing logger commands write to w, usually
// os.Stderr. Debug mode also reports the caller.
func Console(w io.Writer, debug bool) *slog.Logger {
	return New(
		WithDebug(debug),
		WithPretty(true),
		WithSource(debug),
		WithWriter(w),
	)
}

// OpenFile appends JSON records to the file at path, creating it with mode
// 0600. Debug mode adds a "source" attribute. The returned func closes the
// file.
func OpenFile(path string, debug bool) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	log := New(
		WithDebug(debug),
		WithJSON(true),
		WithSource(debug),
		WithWriter(f),
	)
	return log, f.Close, nil
}

// Nop returns a logger that drops every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
