// Package daemon holds the carbond runtime configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration, loaded from TOML.
type Config struct {
	API      APIConfig      `toml:"api"`
	Oracle   OracleConfig   `toml:"oracle"`
	Registry RegistryConfig `toml:"registry"`
	Ledger   LedgerConfig   `toml:"ledger"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// OracleConfig configures the settlement oracle.
type OracleConfig struct {
	Identity string `toml:"identity"`
	Tracing  bool   `toml:"tracing"`
}

// RegistryConfig configures the external registry provider.
type RegistryConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// LedgerConfig configures ledger persistence.
type LedgerConfig struct {
	DataDir string `toml:"data_dir"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8090,
			Metrics: true,
		},
		Oracle: OracleConfig{
			Identity: "oracle-default",
			Tracing:  false,
		},
		Registry: RegistryConfig{
			BaseURL: "http://127.0.0.1:3000",
			Timeout: "10s",
		},
		Ledger: LedgerConfig{
			DataDir: defaultDataDir(),
		},
	}
}

// Load reads the config file at path, falling back to defaults for any
// field the file omits. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Oracle.Identity == "" {
		return fmt.Errorf("oracle.identity must not be empty")
	}
	if _, err := time.ParseDuration(c.Registry.Timeout); err != nil {
		return fmt.Errorf("registry.timeout %q: %w", c.Registry.Timeout, err)
	}
	return nil
}

// ListenAddr returns the host:port the API server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// RegistryTimeout returns the registry HTTP timeout as a duration.
func (c *Config) RegistryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Registry.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// DefaultConfigPath returns ~/.carbond/config.toml, honoring CARBOND_HOME.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), "config.toml")
}

func defaultDataDir() string {
	return filepath.Join(homeDir(), "data")
}

func homeDir() string {
	if env := os.Getenv("CARBOND_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".carbond")
}
