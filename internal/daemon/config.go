// Package daemon wires the vitals gateway: configuration, store, engine,
// sweep, and the HTTP API, plus the optional periodic recompute poll.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML with explicit
// defaults applied once.
type Config struct {
	API     APIConfig     `toml:"api"`
	Store   StoreConfig   `toml:"store"`
	Metrics MetricsConfig `toml:"metrics"`
	Engine  EngineConfig  `toml:"engine"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the listen address.
func (a APIConfig) Addr() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// StoreConfig controls the SQLite document store location.
type StoreConfig struct {
	Dir string `toml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// EngineConfig controls the periodic recompute poll. An empty or zero
// interval disables polling; recomputes then run only on demand.
type EngineConfig struct {
	PollInterval string   `toml:"poll_interval"`
	PollPlayers  []string `toml:"poll_players"`
}

// PollEvery parses the poll interval; malformed or empty values disable
// the poll.
func (e EngineConfig) PollEvery() time.Duration {
	if e.PollInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(e.PollInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		API:     APIConfig{Host: "127.0.0.1", Port: 8787},
		Store:   StoreConfig{Dir: defaultStoreDir()},
		Metrics: MetricsConfig{Enabled: true},
		Engine:  EngineConfig{PollInterval: ""},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not
// an error: defaults apply, matching the missing-document convention.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfigPath returns ~/.vitalgate/config.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".vitalgate", "config.toml")
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "store"
	}
	return filepath.Join(home, ".vitalgate", "store")
}
