package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"MAPKIT_TOKEN":           "pk.env.token",
				"MAPKIT_CACHE":           CacheNone,
				"MAPKIT_STYLE_TIMEOUT":   "20s",
				"MAPKIT_WIDTH":           "1280",
				"MAPKIT_LAT":             "-33.86",
				"MAPKIT_ONCE":            "1",
				"MAPKIT_BACKEND_RETRIES": "4",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Token:          "pk.env.token",
				BackendRetries: 4,
				Cache:          CacheNone,
				StyleTimeout:   20 * time.Second,
				Width:          1280,
				Lat:            -33.86,
				Once:           true,
			},
			wantErr: false,
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"MAPKIT_TOKEN": "pk.env.token",
				"MAPKIT_STYLE": "dark",
			},
			changed: map[string]bool{"token": true},
			initial: Config{
				Token: "pk.flag.token",
			},
			expected: Config{
				Token: "pk.flag.token",
				Style: "dark",
			},
			wantErr: false,
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"MAPKIT_CACHE_MAX_AGE": "not-a-duration",
			},
			changed: map[string]bool{},
			initial: Config{},
			wantErr: true,
		},
		{
			name: "returns error for invalid int",
			envVars: map[string]string{
				"MAPKIT_HEIGHT": "tall",
			},
			changed: map[string]bool{},
			initial: Config{},
			wantErr: true,
		},
		{
			name: "ignores non-positive size",
			envVars: map[string]string{
				"MAPKIT_WIDTH": "0",
			},
			changed:  map[string]bool{},
			initial:  Config{Width: 800},
			expected: Config{Width: 800},
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyEnvConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyEnvConfig() unexpected error: %v", err)
				return
			}
			if tt.wantErr {
				return
			}

			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		Token:       "pk.file.token",
		Style:       "file-style",
		BackendURL:  "https://file.example.com",
		Once:        &trueVal,
		CacheMaxAge: "1h",
	}

	t.Setenv("MAPKIT_TOKEN", "pk.env.token")
	t.Setenv("MAPKIT_STYLE", "env-style")

	// Simulate CLI flags
	changed := map[string]bool{
		"token": true,
	}

	cfg := Config{
		Token: "pk.cli.token", // This should remain (CLI wins)
	}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.Token != "pk.cli.token" {
		t.Errorf("Token = %v, want pk.cli.token (CLI should win)", cfg.Token)
	}
	if cfg.Style != "env-style" {
		t.Errorf("Style = %v, want env-style (env should override file)", cfg.Style)
	}
	if cfg.BackendURL != "https://file.example.com" {
		t.Errorf("BackendURL = %v, want file value", cfg.BackendURL)
	}
	if cfg.CacheMaxAge != time.Hour {
		t.Errorf("CacheMaxAge = %v, want 1h (file should set)", cfg.CacheMaxAge)
	}
	if !cfg.Once {
		t.Errorf("Once = %v, want true (file should set)", cfg.Once)
	}
}
