package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
	Server  ServerConfig  `yaml:"server"`
	Mikan   MikanConfig   `yaml:"mikan"`
	Scene   SceneConfig   `yaml:"scene"`
	Capture CaptureConfig `yaml:"capture"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Trace  bool        `yaml:"trace"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path              string   `yaml:"path"`
	SnapshotRetention Duration `yaml:"snapshot_retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// MikanConfig holds settings for the compositor connection.
type MikanConfig struct {
	Provider          string   `yaml:"provider"` // "websocket", "mock"
	URL               string   `yaml:"url"`
	RequestTimeout    Duration `yaml:"request_timeout"`
	ReconnectInterval Duration `yaml:"reconnect_interval"`
	TickInterval      Duration `yaml:"tick_interval"`
	ApplicationName   string   `yaml:"application_name"`
	GraphicsAPI       string   `yaml:"graphics_api"`
	EventQueueSize    int      `yaml:"event_queue_size"`
}

// SceneConfig holds the initial scene settings. Runtime changes are
// persisted in the state store and take precedence.
type SceneConfig struct {
	OriginAnchor  string  `yaml:"origin_anchor"`
	Scale         float64 `yaml:"scale"`
	MetersToUnits float64 `yaml:"meters_to_units"`
}

// CaptureConfig holds frame publishing settings.
type CaptureConfig struct {
	PublishWorkers int `yaml:"publish_workers"`
}

// Provider names.
const (
	ProviderWebSocket = "websocket"
	ProviderMock      = "mock"
)

// Environment overrides.
const (
	EnvURL      = "MIKAN_URL"
	EnvProvider = "MIKAN_PROVIDER"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:              "./data/mikanlink.db",
			SnapshotRetention: Duration(30 * Day),
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Mikan: MikanConfig{
			Provider:          ProviderWebSocket,
			URL:               "ws://127.0.0.1:8080/mikan",
			RequestTimeout:    Duration(2 * time.Second),
			ReconnectInterval: Duration(1 * time.Second),
			TickInterval:      Duration(16 * time.Millisecond),
			ApplicationName:   "mikanlink",
			GraphicsAPI:       "d3d11",
			EventQueueSize:    256,
		},
		Scene: SceneConfig{
			OriginAnchor:  "",
			Scale:         1.0,
			MetersToUnits: 100.0,
		},
		Capture: CaptureConfig{
			PublishWorkers: 2,
		},
	}
}

// Load reads the configuration from path. Missing files are created with
// defaults. Environment overrides are applied last and never saved.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if url := os.Getenv(EnvURL); url != "" {
		cfg.Mikan.URL = url
	}
	if p := os.Getenv(EnvProvider); p != "" {
		cfg.Mikan.Provider = strings.ToLower(p)
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Mikan.Provider {
	case ProviderWebSocket, ProviderMock:
	default:
		return fmt.Errorf("invalid mikan.provider %q: must be %q or %q", c.Mikan.Provider, ProviderWebSocket, ProviderMock)
	}
	if c.Mikan.Provider == ProviderWebSocket && c.Mikan.URL == "" {
		return fmt.Errorf("mikan.url is required for the %s provider", ProviderWebSocket)
	}
	if c.Mikan.TickInterval <= 0 {
		return fmt.Errorf("mikan.tick_interval must be positive")
	}
	if c.Scene.MetersToUnits <= 0 {
		return fmt.Errorf("scene.meters_to_units must be positive")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# mikanlink Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day); a bare number is seconds

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: websocket, mock\n${1}provider:"))

	reAPI := regexp.MustCompile(`(?m)^(\s+)graphics_api:`)
	data = reAPI.ReplaceAll(data, []byte("${1}# Options: d3d9, d3d11, d3d12, opengl, metal, vulkan\n${1}graphics_api:"))

	reOrigin := regexp.MustCompile(`(?m)^(\s+)origin_anchor:`)
	data = reOrigin.ReplaceAll(data, []byte("${1}# Anchor whose pose becomes the scene origin (empty: compositor origin)\n${1}origin_anchor:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
