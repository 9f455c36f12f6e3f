// Package config provides configuration management for Satchel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/fileutil"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Home       string           `yaml:"home"`
	Network    NetworkConfig    `yaml:"network"`
	Derivation DerivationConfig `yaml:"derivation"`
	Fees       FeesConfig       `yaml:"fees"`
	Cache      CacheConfig      `yaml:"cache"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// NetworkConfig selects the network and the Esplora service used for it.
type NetworkConfig struct {
	Name string `yaml:"name"`

	// APIURL overrides the network's default Esplora base URL.
	APIURL string `yaml:"api_url,omitempty"`

	// FallbackURLs are tried in order when broadcasting through APIURL fails.
	FallbackURLs []string `yaml:"fallback_urls,omitempty"`

	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit"`
	RateBurst      int     `yaml:"rate_burst"`
	RetryAttempts  int     `yaml:"retry_attempts"`
}

// DerivationConfig defines key derivation and discovery settings.
type DerivationConfig struct {
	Purpose              uint32 `yaml:"purpose"`
	DefaultAccount       uint32 `yaml:"default_account"`
	GapLimit             int    `yaml:"gap_limit"`
	MaxConsecutiveErrors int    `yaml:"max_consecutive_errors"`
}

// FeesConfig defines fee estimation settings in sat/vB.
type FeesConfig struct {
	DefaultRate  uint64 `yaml:"default_rate"`
	MaxRate      uint64 `yaml:"max_rate"`
	Priority     string `yaml:"priority"`
	UseEstimator bool   `yaml:"use_estimator"`
}

// CacheConfig defines the balance display cache.
type CacheConfig struct {
	Enabled          bool `yaml:"enabled"`
	StalenessSeconds int  `yaml:"staleness_seconds"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrConfigInvalid, err), map[string]string{"path": path})
	}
	return cfg, nil
}

// LoadOrDefault loads path, returning Defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks the values that cannot be corrected silently.
func (c *Config) Validate() error {
	invalid := func(field, value string) error {
		return satchelerr.WithDetails(satchelerr.ErrConfigInvalid, map[string]string{field: value})
	}

	if _, err := chain.ParseNetwork(c.Network.Name); err != nil {
		return invalid("network.name", c.Network.Name)
	}
	if c.Derivation.GapLimit <= 0 {
		return invalid("derivation.gap_limit", fmt.Sprint(c.Derivation.GapLimit))
	}
	if c.Derivation.MaxConsecutiveErrors < 0 {
		return invalid("derivation.max_consecutive_errors", fmt.Sprint(c.Derivation.MaxConsecutiveErrors))
	}
	if c.Derivation.Purpose >= chain.HardenedKeyOffset {
		return invalid("derivation.purpose", fmt.Sprint(c.Derivation.Purpose))
	}
	if c.Derivation.DefaultAccount >= chain.HardenedKeyOffset {
		return invalid("derivation.default_account", fmt.Sprint(c.Derivation.DefaultAccount))
	}
	if c.Fees.DefaultRate == 0 || (c.Fees.MaxRate > 0 && c.Fees.DefaultRate > c.Fees.MaxRate) {
		return invalid("fees.default_rate", fmt.Sprint(c.Fees.DefaultRate))
	}
	return nil
}

// ChainNetwork resolves the configured network value, applying the
// purpose and API URL overrides.
func (c *Config) ChainNetwork() (chain.Network, error) {
	net, err := chain.ParseNetwork(c.Network.Name)
	if err != nil {
		return chain.Network{}, err
	}
	if c.Derivation.Purpose != 0 {
		net = net.WithPurpose(c.Derivation.Purpose)
	}
	if c.Network.APIURL != "" {
		net = net.WithAPIURL(c.Network.APIURL)
	}
	return net, nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Network.TimeoutSeconds) * time.Second
}

// CacheStaleness returns how long cached balances are served.
func (c *Config) CacheStaleness() time.Duration {
	return time.Duration(c.Cache.StalenessSeconds) * time.Second
}

// CachePath returns the balance cache file for the configured network.
func (c *Config) CachePath() string {
	return filepath.Join(ExpandHome(c.Home), "cache", "balances.json")
}

// GetHome returns the satchel home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default satchel home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".satchel"
	}
	return filepath.Join(home, ".satchel")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
