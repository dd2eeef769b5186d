// Package logging builds the slog handler shared by both binaries: JSON to
// stdout by default, or to a size-rotated file when a path is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Defaults for file rotation.
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 14
)

// Config is the `log` block of both config files.
type Config struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// File, when set, receives logs instead of stdout and is rotated.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ParseLevel maps a level name to a slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// Validate checks the level name.
func (c Config) Validate() error {
	_, err := ParseLevel(c.Level)
	return err
}

// New returns a JSON logger for cfg and the writer behind it. The caller
// closes the writer on shutdown when it is an io.Closer.
func New(cfg Config) (*slog.Logger, io.Writer, error) {
	return NewTo(cfg, os.Stdout)
}

// NewTo is New with the writer used when no file is configured.
func NewTo(cfg Config, fallback io.Writer) (*slog.Logger, io.Writer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	w := fallback
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, DefaultMaxAgeDays),
		}
	}
	return NewWithWriter(w, level), w, nil
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup builds the logger for cfg and installs it as the slog default.
// The returned func releases the log file, if any.
func Setup(cfg Config) (func(), error) {
	return SetupTo(cfg, os.Stdout)
}

// SetupTo is Setup with the writer used when no file is configured. The
// agent CLI logs to stderr so stdout carries only the report.
func SetupTo(cfg Config, fallback io.Writer) (func(), error) {
	logger, w, err := NewTo(cfg, fallback)
	if err != nil {
		return func() {}, err
	}
	slog.SetDefault(logger)
	return func() {
		if lj, ok := w.(*lumberjack.Logger); ok {
			_ = lj.Close()
		}
	}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
