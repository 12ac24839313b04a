package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Token           string   `toml:"token"`
	BackendURL      string   `toml:"backend_url"`
	BackendAuth     string   `toml:"backend_auth"`
	ProbeURL        string   `toml:"probe_url"`
	BackendRetries  int      `toml:"backend_retries"`
	Cache           string   `toml:"cache"`
	CacheDir        string   `toml:"cache_dir"`
	CachePassphrase string   `toml:"cache_passphrase"`
	CacheMaxAge     string   `toml:"cache_max_age"`
	Style           string   `toml:"style"`
	StyleFile       string   `toml:"style_file"`
	Width           int      `toml:"width"`
	Height          int      `toml:"height"`
	Lng             *float64 `toml:"lng"`
	Lat             *float64 `toml:"lat"`
	Zoom            *float64 `toml:"zoom"`
	StyleTimeout    string   `toml:"style_timeout"`
	HTTPTimeout     string   `toml:"http_timeout"`
	MetricsAddr     string   `toml:"metrics_addr"`
	LogLevel        string   `toml:"log_level"`
	Once            *bool    `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.mapkit/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mapkit", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("token", fc.Token, &cfg.Token)
	s.setString("backend-url", fc.BackendURL, &cfg.BackendURL)
	s.setString("backend-auth", fc.BackendAuth, &cfg.BackendAuth)
	s.setString("probe-url", fc.ProbeURL, &cfg.ProbeURL)
	s.setString("cache", fc.Cache, &cfg.Cache)
	s.setString("cache-dir", fc.CacheDir, &cfg.CacheDir)
	s.setString("cache-passphrase", fc.CachePassphrase, &cfg.CachePassphrase)
	s.setString("style", fc.Style, &cfg.Style)
	s.setString("style-file", fc.StyleFile, &cfg.StyleFile)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("cache-max-age", fc.CacheMaxAge, &cfg.CacheMaxAge); err != nil {
		return err
	}
	if err := s.setDuration("style-timeout", fc.StyleTimeout, &cfg.StyleTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("backend-retries", fc.BackendRetries, &cfg.BackendRetries)
	s.setInt("width", fc.Width, &cfg.Width)
	s.setInt("height", fc.Height, &cfg.Height)

	s.setFloat("lng", fc.Lng, &cfg.Lng)
	s.setFloat("lat", fc.Lat, &cfg.Lat)
	s.setFloat("zoom", fc.Zoom, &cfg.Zoom)

	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
