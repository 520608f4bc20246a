package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// QRSCAN_SERVER_PORT.
const EnvPrefix = "QRSCAN_"

type Config struct {
	Capture   CaptureConfig   `yaml:"capture" envPrefix:"CAPTURE_"`
	Scanner   ScannerConfig   `yaml:"scanner" envPrefix:"SCANNER_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Broadcast BroadcastConfig `yaml:"broadcast" envPrefix:"BROADCAST_"`
	Health    HealthConfig    `yaml:"health" envPrefix:"HEALTH_"`
}

type CaptureConfig struct {
	// Device is a device spec: dir:<path>, ws://host/path, webcam:<n> or
	// mock:<payload,...>.
	Device    string `yaml:"device" env:"DEVICE"`
	FrameRate int    `yaml:"frame_rate" env:"FRAME_RATE"`
	Loop      bool   `yaml:"loop" env:"LOOP"`
	// Permission is the initial camera authorization: prompt, granted,
	// denied or restricted.
	Permission string `yaml:"permission" env:"PERMISSION"`
	// Token authenticates against a remote camera.
	Token string `yaml:"token" env:"TOKEN"`
}

type ScannerConfig struct {
	Haptic      bool `yaml:"haptic" env:"HAPTIC"`
	FocusSize   int  `yaml:"focus_size" env:"FOCUS_SIZE"`
	CloseInsetX int  `yaml:"close_inset_x" env:"CLOSE_INSET_X"`
	CloseInsetY int  `yaml:"close_inset_y" env:"CLOSE_INSET_Y"`
	CloseSize   int  `yaml:"close_size" env:"CLOSE_SIZE"`
	TryHarder   bool `yaml:"try_harder" env:"TRY_HARDER"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	Host           string   `yaml:"host" env:"HOST"`
	AuthToken      string   `yaml:"auth_token" env:"AUTH_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type BroadcastConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
	Throttle         time.Duration `yaml:"throttle" env:"THROTTLE"`
	MaxConnections   int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

type HealthConfig struct {
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
}

func defaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Device:     "mock:",
			FrameRate:  15,
			Loop:       true,
			Permission: "granted",
		},
		Scanner: ScannerConfig{
			Haptic:      true,
			FocusSize:   12,
			CloseInsetX: 2,
			CloseInsetY: 1,
			CloseSize:   3,
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Broadcast: BroadcastConfig{
			SnapshotInterval: 5 * time.Second,
			Throttle:         100 * time.Millisecond,
			MaxConnections:   100,
		},
		Health: HealthConfig{
			FailureThreshold: 5,
		},
	}
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() (*Config, error) {
	cfg := defaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Load reads path over the defaults, then applies QRSCAN_* environment
// overrides. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when path is empty or
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default()
	}
	return cfg, err
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values the scanner cannot run with.
func (c *Config) Validate() error {
	if c.Capture.FrameRate <= 0 {
		return fmt.Errorf("capture.frame_rate must be positive, got %d", c.Capture.FrameRate)
	}
	switch c.Capture.Permission {
	case "prompt", "granted", "denied", "restricted":
	default:
		return fmt.Errorf("capture.permission: unknown value %q", c.Capture.Permission)
	}
	if c.Scanner.FocusSize <= 0 {
		return fmt.Errorf("scanner.focus_size must be positive, got %d", c.Scanner.FocusSize)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Broadcast.SnapshotInterval <= 0 {
		return fmt.Errorf("broadcast.snapshot_interval must be positive, got %v", c.Broadcast.SnapshotInterval)
	}
	if c.Broadcast.Throttle <= 0 {
		return fmt.Errorf("broadcast.throttle must be positive, got %v", c.Broadcast.Throttle)
	}
	if c.Broadcast.MaxConnections < 0 {
		return fmt.Errorf("broadcast.max_connections must not be negative, got %d", c.Broadcast.MaxConnections)
	}
	if c.Health.FailureThreshold <= 0 {
		return fmt.Errorf("health.failure_threshold must be positive, got %d", c.Health.FailureThreshold)
	}
	return nil
}

// Addr is the listen address for the daemon.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
