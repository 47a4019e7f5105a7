// Copyright 2025 The Stratum Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil builds slog loggers from configuration. Loggers are
// constructed and passed in explicitly; nothing here installs process-wide
// state beyond what the caller asks for.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Config selects the level, encoding and destination of a logger.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
	// Output is stdout, stderr or a file path opened for append.
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns the settings used when nothing is configured: info
// level, text format, stderr. Stderr keeps stdout free for command output.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Output: "stderr"}
}

// RegisterFlags binds the logging flags onto c.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Level, "log-level", c.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.Format, "log-format", c.Format, "Log format (text, json)")
	fs.StringVar(&c.Output, "log-output", c.Output, "Log output (stdout, stderr, or file path)")
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	if c.Output == "" {
		c.Output = def.Output
	}
	return c
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// Handler builds the slog handler described by cfg writing to w. The output
// setting is ignored here; NewLogger resolves it.
func Handler(cfg Config, w io.Writer) (slog.Handler, error) {
	cfg = cfg.withDefaults()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return WithTraceContext(handler), nil
}

// NewLogger builds a logger from cfg. File outputs are opened for append and
// stay open for the life of the process.
func NewLogger(cfg Config) (*slog.Logger, error) {
	cfg = cfg.withDefaults()

	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log output: %w", err)
		}
		output = file
	}

	handler, err := Handler(cfg, output)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}
