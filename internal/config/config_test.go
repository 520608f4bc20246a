package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
capture:
  device: "dir:/srv/frames"
  frame_rate: 5
  permission: prompt
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins:
    - "http://localhost:3000"
broadcast:
  snapshot_interval: 2s
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Capture.Device != "dir:/srv/frames" {
		t.Errorf("Capture.Device = %q", cfg.Capture.Device)
	}
	if cfg.Capture.FrameRate != 5 {
		t.Errorf("Capture.FrameRate = %d, want 5", cfg.Capture.FrameRate)
	}
	if cfg.Capture.Permission != "prompt" {
		t.Errorf("Capture.Permission = %q, want prompt", cfg.Capture.Permission)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Broadcast.SnapshotInterval != 2*time.Second {
		t.Errorf("Broadcast.SnapshotInterval = %v, want 2s", cfg.Broadcast.SnapshotInterval)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Scanner.FocusSize == 0 {
		t.Error("Scanner.FocusSize should have default, got 0")
	}
	if cfg.Health.FailureThreshold != 5 {
		t.Errorf("Health.FailureThreshold = %d, want 5", cfg.Health.FailureThreshold)
	}
	if got := cfg.Addr(); got != "0.0.0.0:9090" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Capture.Permission != "granted" {
		t.Errorf("Capture.Permission = %q, want default granted", cfg.Capture.Permission)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 9090\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QRSCAN_SERVER_PORT", "7070")
	t.Setenv("QRSCAN_CAPTURE_DEVICE", "webcam:1")
	t.Setenv("QRSCAN_SERVER_ALLOWED_ORIGINS", "http://a,http://b")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Capture.Device != "webcam:1" {
		t.Errorf("Capture.Device = %q, want webcam:1", cfg.Capture.Device)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadRejectsZeroSnapshotInterval(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("broadcast:\n  snapshot_interval: 0s\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() accepted a zero snapshot interval")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero frame rate", func(c *Config) { c.Capture.FrameRate = 0 }, true},
		{"unknown permission", func(c *Config) { c.Capture.Permission = "maybe" }, true},
		{"restricted permission", func(c *Config) { c.Capture.Permission = "restricted" }, false},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, true},
		{"zero focus", func(c *Config) { c.Scanner.FocusSize = 0 }, true},
		{"zero threshold", func(c *Config) { c.Health.FailureThreshold = 0 }, true},
		{"zero snapshot interval", func(c *Config) { c.Broadcast.SnapshotInterval = 0 }, true},
		{"negative throttle", func(c *Config) { c.Broadcast.Throttle = -time.Millisecond }, true},
		{"negative max connections", func(c *Config) { c.Broadcast.MaxConnections = -1 }, true},
		{"unlimited connections", func(c *Config) { c.Broadcast.MaxConnections = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
