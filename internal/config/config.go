package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIBaseURL      = "https://story-api.dicoding.dev/v1"
	DefaultGeocoderBaseURL = "https://nominatim.openstreetmap.org"
	DefaultUserAgent       = "storysync/1.0"

	defaultAPITimeout    = 30
	defaultFreshness     = 10
	defaultGeoTimeout    = 5
	defaultProbeInterval = 15
	defaultProbeTimeout  = 5
)

// Config represents the main configuration for storysync.
type Config struct {
	DeviceID     string             `toml:"device_id"`
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	API          APIConfig          `toml:"api"`
	Geocoder     GeocoderConfig     `toml:"geocoder"`
	Database     DatabaseConfig     `toml:"database"`
	Token        TokenConfig        `toml:"token"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
}

// APIConfig configures the story API client.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// FreshnessSeconds bounds how long reads wait for the network when a
	// cached answer exists.
	FreshnessSeconds int `toml:"freshness_seconds"`
}

// GeocoderConfig configures the location resolver.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type GeocoderConfig struct {
	Type           string `toml:"type"` // "nominatim" or "none"
	BaseURL        string `toml:"base_url,omitempty"`
	UserAgent      string `toml:"user_agent,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// DatabaseConfig represents configuration for the local store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// TokenConfig configures where the session token is kept. The file is the
// primary slot; the local store always holds a secondary copy.
type TokenConfig struct {
	Type string `toml:"type"`           // "file" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=file
}

// ConnectivityConfig configures how online state is determined.
type ConnectivityConfig struct {
	Type                 string `toml:"type"` // "probe" or "static"
	ProbeIntervalSeconds int    `toml:"probe_interval_seconds,omitempty"`
	ProbeTimeoutSeconds  int    `toml:"probe_timeout_seconds,omitempty"`
	Online               bool   `toml:"online,omitempty"` // only used for type=static
}

// NewConfig creates a new Config with the provided values and default settings.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		API: APIConfig{
			BaseURL:          DefaultAPIBaseURL,
			TimeoutSeconds:   defaultAPITimeout,
			FreshnessSeconds: defaultFreshness,
		},
		Geocoder: GeocoderConfig{
			Type:           "nominatim",
			BaseURL:        DefaultGeocoderBaseURL,
			UserAgent:      DefaultUserAgent,
			TimeoutSeconds: defaultGeoTimeout,
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Token:    TokenConfig{Type: "file", Path: filepath.Join(baseDir, "token")},
		Connectivity: ConnectivityConfig{
			Type:                 "probe",
			ProbeIntervalSeconds: defaultProbeInterval,
			ProbeTimeoutSeconds:  defaultProbeTimeout,
		},
	}
}

// Timeout returns the per-request API timeout.
func (c APIConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, defaultAPITimeout)
}

// Freshness returns the freshness timeout for cached reads.
func (c APIConfig) Freshness() time.Duration {
	return seconds(c.FreshnessSeconds, defaultFreshness)
}

// Timeout returns the reverse-geocoding request timeout.
func (c GeocoderConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, defaultGeoTimeout)
}

func (c ConnectivityConfig) ProbeInterval() time.Duration {
	return seconds(c.ProbeIntervalSeconds, defaultProbeInterval)
}

func (c ConnectivityConfig) ProbeTimeout() time.Duration {
	return seconds(c.ProbeTimeoutSeconds, defaultProbeTimeout)
}

// seconds converts n to a duration, using fallback when n is not positive.
func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch c.Geocoder.Type {
	case "nominatim", "none":
	default:
		return fmt.Errorf("unknown geocoder type: %q", c.Geocoder.Type)
	}
	switch c.Token.Type {
	case "file":
		if c.Token.Path == "" {
			return fmt.Errorf("token.path required for file token store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown token type: %q", c.Token.Type)
	}
	switch c.Connectivity.Type {
	case "probe", "static":
	default:
		return fmt.Errorf("unknown connectivity type: %q", c.Connectivity.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
