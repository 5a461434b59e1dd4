// Package logger builds the hclog loggers every reelplay component logs
// through.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/config"
)

// Options controls where and how a root logger writes
type Options struct {
	Name   string
	Output io.Writer
}

// New creates the root logger from the logging configuration. Components
// derive their own loggers from it with Named.
func New(cfg config.LoggingConfig, opts Options) hclog.Logger {
	if opts.Name == "" {
		opts.Name = "reelplay"
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	color := hclog.ColorOff
	if cfg.EnableColors && cfg.Format != "json" {
		color = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      ParseLevel(cfg.Level),
		Output:     opts.Output,
		JSONFormat: cfg.Format == "json",
		Color:      color,
	})
}

// Default is the logger used before configuration is loaded
func Default() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "reelplay",
		Level: hclog.Info,
	})
}

// ParseLevel maps a configured level name to an hclog level. Unknown names
// log at info.
func ParseLevel(level string) hclog.Level {
	l := hclog.LevelFromString(strings.TrimSpace(level))
	if l == hclog.NoLevel {
		return hclog.Info
	}
	return l
}
