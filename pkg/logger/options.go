package logger

import (
	"io"
	"log/slog"
)

// Format selects the handler used by New.
type Format int

const (
	// FormatText is slog's key=value text output.
	FormatText Format = iota

	// FormatPretty is colorized charmbracelet/log output for terminals.
	FormatPretty

	// FormatJSON is one JSON object per record, for log files.
	FormatJSON
)

// Option configures a Logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithWriter sets the output. Several writers are combined with
// io.MultiWriter. Defaults to os.Stdout.
func WithWriter(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

// WithSource adds the caller's file:line to each record.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}

// WithComponent tags every record with a "component" attribute.
func WithComponent(name string) Option {
	return func(c *config) {
		c.component = name
	}
}
