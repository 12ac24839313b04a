package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/mapkit/pkg/mapcore"
	"github.com/bft-labs/mapkit/pkg/resource"
	"github.com/bft-labs/mapkit/pkg/token"
)

// Token cache backends.
const (
	CacheFile   = "file"
	CacheBadger = "badger"
	CacheNone   = "none"
)

// DefaultProbeURL is the tile endpoint used to check tokens.
const DefaultProbeURL = token.DefaultProbeURL

// DefaultStyle is the style used when none is configured.
const DefaultStyle = "mapbox://styles/mapbox/streets-v12"

// Config holds CLI configuration for mapkit.
type Config struct {
	Token       string
	BackendURL  string
	BackendAuth string
	ProbeURL    string

	// BackendRetries is the number of extra backend attempts after a
	// transport error or 5xx response.
	BackendRetries int

	Cache           string
	CacheDir        string
	CachePassphrase string
	CacheMaxAge     time.Duration

	Style     string
	StyleFile string
	Width     int
	Height    int
	Lng       float64
	Lat       float64
	Zoom      float64

	StyleTimeout time.Duration
	HTTPTimeout  time.Duration

	MetricsAddr string
	LogLevel    string
	Once        bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ProbeURL:       DefaultProbeURL,
		BackendRetries: 2,
		Cache:          CacheFile,
		CacheDir:       "", // Derived from the home directory during Validate
		CacheMaxAge:    24 * time.Hour,
		Style:          DefaultStyle,
		Width:          800,
		Height:         600,
		Zoom:           2,
		StyleTimeout:   mapcore.DefaultStyleLoadTimeout,
		HTTPTimeout:    15 * time.Second,
		LogLevel:       "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	switch c.Cache {
	case CacheFile, CacheBadger, CacheNone:
	default:
		return fmt.Errorf("cache must be one of %s, %s, %s", CacheFile, CacheBadger, CacheNone)
	}

	if c.CacheDir == "" && c.Cache != CacheNone {
		h, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cache-dir is required: %w", err)
		}
		c.CacheDir = filepath.Join(h, ".mapkit")
	}
	if c.Cache != CacheNone && c.CachePassphrase == "" {
		return fmt.Errorf("cache-passphrase is required when the token cache is enabled")
	}

	// Ensure no trailing slash
	c.BackendURL = strings.TrimSuffix(c.BackendURL, "/")

	if c.BackendRetries < 0 {
		return fmt.Errorf("backend retries must not be negative")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	if c.StyleTimeout <= 0 {
		return fmt.Errorf("style timeout must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.Style == "" && c.StyleFile == "" {
		c.Style = DefaultStyle
	}

	return nil
}

// MapConfig converts c into a controller configuration.
func (c *Config) MapConfig() mapcore.Config {
	cfg := mapcore.DefaultConfig()
	cfg.Token = resource.TokenConfig{
		Override:         c.Token,
		BackendURL:       c.BackendURL,
		BackendAuth:      c.BackendAuth,
		ProbeURL:         c.ProbeURL,
		BackendRetries:   c.BackendRetries,
		CacheMaxAge:      c.CacheMaxAge,
		ValidationWindow: resource.DefaultValidationWindow,
	}
	cfg.StyleLoadTimeout = c.StyleTimeout
	return cfg
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = "*****"
	}
	if c.BackendAuth != "" {
		c.BackendAuth = "*****"
	}
	if c.CachePassphrase != "" {
		c.CachePassphrase = "*****"
	}
	return c
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if flag not changed. Coordinates may be
// negative, so only nil is skipped.
func (s *configSetter) setFloat(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
