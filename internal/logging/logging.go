// Package logging builds the logrus logger shared by every devserve
// component.
//
// Each component logs through an entry carrying a "layer" field (server,
// discovery, app …) so that lines can be filtered per subsystem.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Options controls logger construction.
type Options struct {
	// Level is a logrus level name. Empty means "info".
	Level string

	// Format is "text" (default) or "json".
	Format string

	// Out is the destination. Nil means a colour-capable stderr.
	Out io.Writer
}

// New creates a logger from opts.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	logger.SetLevel(lvl)

	out := opts.Out
	colors := false
	if out == nil {
		out = colorable.NewColorableStderr()
		colors = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	}
	logger.SetOutput(out)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
			ForceColors:     colors,
			DisableColors:   !colors,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: text, json)", opts.Format)
	}

	return logger, nil
}

// Layer returns an entry tagged with the given subsystem name.
func Layer(logger *logrus.Logger, layer string) *logrus.Entry {
	return logger.WithField("layer", layer)
}

// Discard returns a logger that drops everything. Handy for tests and for
// components constructed without a logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
