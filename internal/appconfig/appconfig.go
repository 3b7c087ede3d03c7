// Package appconfig loads nustat-config.toml into logging/network/
// display sections (see DESIGN.md for why TOML is the config-file
// format here rather than JSON).
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk shape of nustat-config.toml.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
	Display DisplayConfig `toml:"display"`
}

type LoggingConfig struct {
	Level    string `toml:"level"`     // debug|info|warn|error
	FilePath string `toml:"file_path"` // empty means stderr
}

type NetworkConfig struct {
	Interface         string `toml:"interface"`
	SocketInterval    int    `toml:"socket_interval_secs"`
	IPInfoInterval    int    `toml:"ipinfo_interval_secs"`
	DNSInterval       int    `toml:"dns_interval_secs"`
	DNSResolver       string `toml:"dns_resolver"`
	DisableReverseDNS bool   `toml:"disable_reverse_dns"`
}

type DisplayConfig struct {
	TickRateMillis   int  `toml:"tick_rate_millis"`
	EnhancedGraphics bool `toml:"enhanced_graphics"`
	TopN             int  `toml:"top_n"`
}

// Default returns the config used when no file is present: a
// 1-second refresh tick, interface auto-detection, reverse DNS enabled.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "warn"},
		Network: NetworkConfig{
			SocketInterval: 10,
			IPInfoInterval: 8,
			DNSInterval:    5,
		},
		Display: DisplayConfig{
			TickRateMillis:   1000,
			EnhancedGraphics: false,
			TopN:             10,
		},
	}
}

// Dir returns $HOME/.nustat, spec.md §6's config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("appconfig: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".nustat"), nil
}

// EnsureDir creates the config directory if it does not already exist.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("appconfig: create config dir %q: %w", dir, err)
	}
	return dir, nil
}

// Load reads path (nustat-config.toml) over Default(), so unset fields
// keep their defaults. A missing file is not an error: Default() alone
// is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("appconfig: parse %q: %w", path, err)
	}
	return cfg, nil
}
