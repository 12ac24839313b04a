package cliconfig

import "os"

// ApplyEnvConfig applies MAPKIT_* environment variables to cfg. Flags that
// were set explicitly (changed map) win.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("token", os.Getenv("MAPKIT_TOKEN"), &cfg.Token)
	s.setString("backend-url", os.Getenv("MAPKIT_BACKEND_URL"), &cfg.BackendURL)
	s.setString("backend-auth", os.Getenv("MAPKIT_BACKEND_AUTH"), &cfg.BackendAuth)
	s.setString("probe-url", os.Getenv("MAPKIT_PROBE_URL"), &cfg.ProbeURL)
	s.setString("cache", os.Getenv("MAPKIT_CACHE"), &cfg.Cache)
	s.setString("cache-dir", os.Getenv("MAPKIT_CACHE_DIR"), &cfg.CacheDir)
	s.setString("cache-passphrase", os.Getenv("MAPKIT_CACHE_PASSPHRASE"), &cfg.CachePassphrase)
	s.setString("style", os.Getenv("MAPKIT_STYLE"), &cfg.Style)
	s.setString("style-file", os.Getenv("MAPKIT_STYLE_FILE"), &cfg.StyleFile)
	s.setString("metrics-addr", os.Getenv("MAPKIT_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv("MAPKIT_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("cache-max-age", os.Getenv("MAPKIT_CACHE_MAX_AGE"), &cfg.CacheMaxAge); err != nil {
		return err
	}
	if err := s.setDuration("style-timeout", os.Getenv("MAPKIT_STYLE_TIMEOUT"), &cfg.StyleTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("MAPKIT_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("backend-retries", os.Getenv("MAPKIT_BACKEND_RETRIES"), &cfg.BackendRetries); err != nil {
		return err
	}
	if err := s.setIntFromString("width", os.Getenv("MAPKIT_WIDTH"), &cfg.Width); err != nil {
		return err
	}
	if err := s.setIntFromString("height", os.Getenv("MAPKIT_HEIGHT"), &cfg.Height); err != nil {
		return err
	}

	if err := s.setFloatFromString("lng", os.Getenv("MAPKIT_LNG"), &cfg.Lng); err != nil {
		return err
	}
	if err := s.setFloatFromString("lat", os.Getenv("MAPKIT_LAT"), &cfg.Lat); err != nil {
		return err
	}
	if err := s.setFloatFromString("zoom", os.Getenv("MAPKIT_ZOOM"), &cfg.Zoom); err != nil {
		return err
	}

	s.setBoolFromString("once", os.Getenv("MAPKIT_ONCE"), &cfg.Once)
	return nil
}
