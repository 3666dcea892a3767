package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration, loaded from
// ~/.fancoin/config.toml with FANCOIN_* environment overrides on top.
type Config struct {
	API     APIConfig     `toml:"api"`
	Data    DataConfig    `toml:"data"`
	Economy EconomyConfig `toml:"economy"`
	Jobs    JobsConfig    `toml:"jobs"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host" env:"FANCOIN_API_HOST"`
	Port           int    `toml:"port" env:"FANCOIN_API_PORT"`
	MetricsEnabled bool   `toml:"metrics_enabled" env:"FANCOIN_METRICS_ENABLED"`
}

// DataConfig controls where the ledger database lives.
type DataConfig struct {
	Dir string `toml:"dir" env:"FANCOIN_DATA_DIR"`
}

// EconomyConfig holds the coin rate and platform fee.
type EconomyConfig struct {
	CoinsPerBRL        int64   `toml:"coins_per_brl" env:"FANCOIN_COINS_PER_BRL"`
	PlatformFeePercent float64 `toml:"platform_fee_percent" env:"FANCOIN_PLATFORM_FEE_PERCENT"`
}

// JobsConfig controls the background sweep intervals.
type JobsConfig struct {
	// SweepInterval is how often matured commitments are completed,
	// as a Go duration string.
	SweepInterval string `toml:"sweep_interval" env:"FANCOIN_SWEEP_INTERVAL"`
	// VestingTickInterval is how often time-vesting grants are checked.
	VestingTickInterval string `toml:"vesting_tick_interval" env:"FANCOIN_VESTING_TICK_INTERVAL"`
}

// DefaultConfig returns the platform defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8480,
			MetricsEnabled: true,
		},
		Data: DataConfig{
			Dir: defaultDataDir(),
		},
		Economy: EconomyConfig{
			CoinsPerBRL:        100,
			PlatformFeePercent: 15,
		},
		Jobs: JobsConfig{
			SweepInterval:       "1m",
			VestingTickInterval: "1m",
		},
	}
}

// LoadConfig loads the config file at path on top of the defaults, then
// applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DefaultConfigPath returns ~/.fancoin/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), "config.toml")
}

// defaultDataDir returns ~/.fancoin/data.
func defaultDataDir() string {
	return filepath.Join(homeDir(), "data")
}

func homeDir() string {
	if dir := os.Getenv("FANCOIN_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fancoin"
	}
	return filepath.Join(home, ".fancoin")
}
