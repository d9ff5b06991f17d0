// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger used across cfgsync.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level and output format.
type Config struct {
	Level  string
	Format string // console or json
	Output io.Writer
}

// New builds a logger. Output defaults to stderr; stdout is reserved for reports.
func New(cfg Config) zerolog.Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(cfg.Level))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns the context logger tagged with a component field.
func Component(ctx context.Context, name string) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("component", name).Logger()
	return &l
}

// WithRepo returns ctx carrying a logger tagged with the repository name.
func WithRepo(ctx context.Context, repo string) context.Context {
	return zerolog.Ctx(ctx).With().Str("repo", repo).Logger().WithContext(ctx)
}
