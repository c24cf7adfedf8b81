package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the bridge daemon's own log output.
// With an empty Dir, logs go to stderr with colored levels. When Dir is
// set, logs are written to Dir/patze-bridge.log as JSON with lumberjack
// rotation semantics.
type Config struct {
	Level      string `toml:"level" mapstructure:"level"` // debug, info, warn, error
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// New builds a slog.Logger from the config. It never fails; an unknown
// level falls back to info.
func (c Config) New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	if c.Dir == "" {
		return slog.New(NewColorTextHandler(os.Stderr, opts, true))
	}
	return slog.New(slog.NewJSONHandler(c.writer(), opts))
}

func (c Config) writer() io.Writer {
	return &lj.Logger{
		Filename:   filepath.Join(c.Dir, "patze-bridge.log"),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
