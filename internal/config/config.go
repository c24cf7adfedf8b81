package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/patze/bridge/internal/logger"
	"github.com/patze/bridge/internal/telemetry"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Log      *logger.Config  `toml:"log" mapstructure:"log"`
	Server   ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics  MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Mapper   MapperConfig    `toml:"mapper" mapstructure:"mapper"`
	Machines []MachineConfig `toml:"machines" mapstructure:"machines"`
	Sinks    []SinkConfig    `toml:"sinks" mapstructure:"sinks"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type MapperConfig struct {
	EvictionWindow time.Duration `toml:"eviction_window" mapstructure:"eviction_window"`
	MaxSessions    int           `toml:"max_sessions" mapstructure:"max_sessions"`
}

// MachineConfig describes one agent runtime to poll. Kind is a free-form
// label carried into machine.registered (e.g. "desktop", "ci").
type MachineConfig struct {
	ID                string        `toml:"id" mapstructure:"id"`
	Label             string        `toml:"label" mapstructure:"label"`
	Kind              string        `toml:"kind" mapstructure:"kind"`
	URL               string        `toml:"url" mapstructure:"url"`
	PollInterval      time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
}

type SinkConfig struct {
	DSN   string `toml:"dsn" mapstructure:"dsn"`
	Token string `toml:"token" mapstructure:"token"`
}

const (
	DefaultPollInterval      = 2 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultServerListen      = "127.0.0.1:8088"
)

// Load reads and validates a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	fc.applyDefaults()
	return &fc, nil
}

func (fc *FileConfig) validate() error {
	if len(fc.Machines) == 0 {
		return fmt.Errorf("config must define at least one machine")
	}
	seen := make(map[string]bool, len(fc.Machines))
	for i, m := range fc.Machines {
		if m.ID == "" {
			return fmt.Errorf("machine %d requires id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate machine id %q", m.ID)
		}
		seen[m.ID] = true
		if m.URL == "" {
			return fmt.Errorf("machine %s requires url", m.ID)
		}
		if !strings.HasPrefix(m.URL, "http://") && !strings.HasPrefix(m.URL, "https://") {
			return fmt.Errorf("machine %s url must be http(s), got %q", m.ID, m.URL)
		}
	}
	for i, s := range fc.Sinks {
		if strings.TrimSpace(s.DSN) == "" {
			return fmt.Errorf("sink %d requires dsn", i)
		}
	}
	if fc.Mapper.EvictionWindow < 0 {
		return fmt.Errorf("mapper eviction_window must not be negative")
	}
	if fc.Mapper.MaxSessions < 0 {
		return fmt.Errorf("mapper max_sessions must not be negative")
	}
	return nil
}

func (fc *FileConfig) applyDefaults() {
	for i := range fc.Machines {
		m := &fc.Machines[i]
		if m.Label == "" {
			m.Label = m.ID
		}
		if m.PollInterval <= 0 {
			m.PollInterval = DefaultPollInterval
		}
		if m.HeartbeatInterval <= 0 {
			m.HeartbeatInterval = DefaultHeartbeatInterval
		}
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = DefaultServerListen
	}
	if fc.Mapper.EvictionWindow == 0 {
		fc.Mapper.EvictionWindow = telemetry.DefaultEvictionWindow
	}
	if fc.Mapper.MaxSessions == 0 {
		fc.Mapper.MaxSessions = telemetry.DefaultMaxSessions
	}
}

// MapperOptions converts the mapper section into telemetry options.
func (fc *FileConfig) MapperOptions() telemetry.Options {
	return telemetry.Options{
		EvictionWindow: fc.Mapper.EvictionWindow,
		MaxSessions:    fc.Mapper.MaxSessions,
	}
}
