package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Config represents ~/.wppgw/config.toml.
type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Polling PollingConfig `toml:"polling"`
	Store   StoreConfig   `toml:"store"`
	Daemon  DaemonConfig  `toml:"daemon"`
}

// GatewayConfig holds the deployment-wide credentials of the remote gateway.
type GatewayConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Timeout     Duration `toml:"timeout"`
	Integration string   `toml:"integration"`
}

// PollingConfig controls status re-checks per session state.
type PollingConfig struct {
	ConnectedInterval    Duration `toml:"connected_interval"`
	ConnectingInterval   Duration `toml:"connecting_interval"`
	DisconnectedInterval Duration `toml:"disconnected_interval"`
	ConflictBackoff      Duration `toml:"conflict_backoff"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"` // empty = default under the data dir
}

type DaemonConfig struct {
	Socket        string `toml:"socket"`
	WebhookAddr   string `toml:"webhook_addr"` // empty disables the webhook receiver
	WebhookSecret string `toml:"webhook_secret"`
	LogPath       string `toml:"log_path"`
}

// Duration is a time.Duration that reads and writes as a string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every optional field populated.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:     "http://localhost:8080",
			Timeout:     Duration{15 * time.Second},
			Integration: "WHATSAPP-BAILEYS",
		},
		Polling: PollingConfig{
			ConnectedInterval:    Duration{30 * time.Second},
			ConnectingInterval:   Duration{5 * time.Second},
			DisconnectedInterval: Duration{30 * time.Second},
			ConflictBackoff:      Duration{time.Second},
		},
		Store: StoreConfig{Driver: DriverSQLite},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WPPGW_GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("WPPGW_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("store.driver %q: want %q or %q", c.Store.Driver, DriverSQLite, DriverBolt)
	}
	durations := map[string]Duration{
		"gateway.timeout":               c.Gateway.Timeout,
		"polling.connected_interval":    c.Polling.ConnectedInterval,
		"polling.connecting_interval":   c.Polling.ConnectingInterval,
		"polling.disconnected_interval": c.Polling.DisconnectedInterval,
	}
	for name, d := range durations {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Polling.ConflictBackoff.Duration < 0 {
		return fmt.Errorf("polling.conflict_backoff must not be negative")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
