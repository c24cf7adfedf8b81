package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/patze/bridge/internal/telemetry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"
dir = "/tmp/patze-logs"
max_size_mb = 5

[server]
enabled = true
listen = "127.0.0.1:9099"

[metrics]
enabled = true
listen = "127.0.0.1:9100"

[mapper]
eviction_window = "10m"
max_sessions = 100

[[machines]]
id = "laptop"
label = "Dev Laptop"
kind = "desktop"
url = "http://127.0.0.1:4750"
poll_interval = "1s"
heartbeat_interval = "15s"

[[machines]]
id = "ci-01"
url = "http://ci01.internal:4750"

[[sinks]]
dsn = "http://ingest.example.com"
token = "secret"

[[sinks]]
dsn = "sqlite:///tmp/events.db"
`)

	fc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if fc.Log == nil || fc.Log.Level != "debug" || fc.Log.MaxSizeMB != 5 {
		t.Fatalf("log section not parsed: %+v", fc.Log)
	}
	if !fc.Server.Enabled || fc.Server.Listen != "127.0.0.1:9099" {
		t.Fatalf("server section not parsed: %+v", fc.Server)
	}
	if fc.Mapper.EvictionWindow != 10*time.Minute || fc.Mapper.MaxSessions != 100 {
		t.Fatalf("mapper section not parsed: %+v", fc.Mapper)
	}

	if len(fc.Machines) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(fc.Machines))
	}
	m0 := fc.Machines[0]
	if m0.ID != "laptop" || m0.Label != "Dev Laptop" || m0.Kind != "desktop" {
		t.Fatalf("machine 0 not parsed: %+v", m0)
	}
	if m0.PollInterval != time.Second || m0.HeartbeatInterval != 15*time.Second {
		t.Fatalf("machine 0 intervals: %+v", m0)
	}
	m1 := fc.Machines[1]
	if m1.Label != "ci-01" {
		t.Fatalf("expected label to default to id, got %q", m1.Label)
	}
	if m1.PollInterval != DefaultPollInterval || m1.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Fatalf("machine 1 defaults not applied: %+v", m1)
	}

	if len(fc.Sinks) != 2 || fc.Sinks[0].Token != "secret" {
		t.Fatalf("sinks not parsed: %+v", fc.Sinks)
	}

	opts := fc.MapperOptions()
	if opts.EvictionWindow != 10*time.Minute || opts.MaxSessions != 100 {
		t.Fatalf("mapper options: %+v", opts)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[[machines]]
id = "m1"
url = "http://localhost:4750"
`)

	fc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Server.Listen != DefaultServerListen {
		t.Fatalf("expected default listen, got %q", fc.Server.Listen)
	}
	if fc.Mapper.EvictionWindow != telemetry.DefaultEvictionWindow {
		t.Fatalf("expected default eviction window, got %v", fc.Mapper.EvictionWindow)
	}
	if fc.Mapper.MaxSessions != telemetry.DefaultMaxSessions {
		t.Fatalf("expected default max sessions, got %d", fc.Mapper.MaxSessions)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no machines", `[server]` + "\n" + `listen = "x"`},
		{"missing id", "[[machines]]\nurl = \"http://x\""},
		{"missing url", "[[machines]]\nid = \"m1\""},
		{"bad url scheme", "[[machines]]\nid = \"m1\"\nurl = \"ftp://x\""},
		{"duplicate id", "[[machines]]\nid = \"m1\"\nurl = \"http://a\"\n[[machines]]\nid = \"m1\"\nurl = \"http://b\""},
		{"empty sink dsn", "[[machines]]\nid = \"m1\"\nurl = \"http://a\"\n[[sinks]]\ndsn = \"\""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
