package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
instance:
  id: "test-install"
backend:
  host: "ccu.local"
  port: 443
  tls:
    enabled: true
storage:
  folder: "/tmp/hmcore"
cache:
  max_age_seconds: 30
session:
  renew_threshold_seconds: 90
  workers: 2
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID != "test-install" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-install")
	}

	if cfg.Backend.Host != "ccu.local" {
		t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, "ccu.local")
	}

	if !cfg.Backend.TLS.Enabled {
		t.Error("Backend.TLS.Enabled = false, want true")
	}

	if cfg.Cache.MaxAgeSeconds != 30 {
		t.Errorf("Cache.MaxAgeSeconds = %d, want 30", cfg.Cache.MaxAgeSeconds)
	}

	if cfg.Session.Workers != 2 {
		t.Errorf("Session.Workers = %d, want 2", cfg.Session.Workers)
	}
}

func TestLoad_GeneratesInstanceID(t *testing.T) {
	content := `
backend:
  host: "ccu.local"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID == "" {
		t.Fatal("expected generated instance ID, got empty string")
	}

	if !strings.HasPrefix(cfg.Instance.ID, "hmcore-") {
		t.Errorf("Instance.ID = %q, want hmcore- prefix", cfg.Instance.ID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
backend:
  host: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty backend.host, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Instance.ID = "test-install"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing instance ID",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing backend host",
			mutate:  func(c *Config) { c.Backend.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid backend port",
			mutate:  func(c *Config) { c.Backend.Port = 0 },
			wantErr: true,
		},
		{
			name:    "missing storage folder",
			mutate:  func(c *Config) { c.Storage.Folder = "" },
			wantErr: true,
		},
		{
			name:    "zero cache max age",
			mutate:  func(c *Config) { c.Cache.MaxAgeSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "zero session workers",
			mutate:  func(c *Config) { c.Session.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid API port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DurationGetters(t *testing.T) {
	cfg := &Config{
		Cache:   CacheConfig{MaxAgeSeconds: 60},
		Session: SessionConfig{RenewThresholdSeconds: 90},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.CacheMaxAge().Seconds(); got != 60 {
		t.Errorf("CacheMaxAge() = %v, want 60", got)
	}

	if got := cfg.SessionRenewThreshold().Seconds(); got != 90 {
		t.Errorf("SessionRenewThreshold() = %v, want 90", got)
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("HMCORE_INSTANCE_ID", "env-install")
	t.Setenv("HMCORE_BACKEND_HOST", "ccu.example.com")
	t.Setenv("HMCORE_BACKEND_USERNAME", "admin")
	t.Setenv("HMCORE_BACKEND_PASSWORD", "secret")
	t.Setenv("HMCORE_STORAGE_FOLDER", "/var/lib/hmcore")
	t.Setenv("HMCORE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HMCORE_INFLUXDB_TOKEN", "influx-token")
	t.Setenv("HMCORE_API_HOST", "192.168.1.1")

	applyEnvOverrides(cfg)

	if cfg.Instance.ID != "env-install" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "env-install")
	}

	if cfg.Backend.Host != "ccu.example.com" {
		t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, "ccu.example.com")
	}

	if cfg.Backend.Auth.Username != "admin" {
		t.Errorf("Backend.Auth.Username = %q, want %q", cfg.Backend.Auth.Username, "admin")
	}

	if cfg.Backend.Auth.Password != "secret" {
		t.Errorf("Backend.Auth.Password = %q, want %q", cfg.Backend.Auth.Password, "secret")
	}

	if cfg.Storage.Folder != "/var/lib/hmcore" {
		t.Errorf("Storage.Folder = %q, want %q", cfg.Storage.Folder, "/var/lib/hmcore")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.InfluxDB.Token != "influx-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "influx-token")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
}

func TestBackendAuthConfig_StringRedactsPassword(t *testing.T) {
	auth := BackendAuthConfig{Username: "admin", Password: "hunter2"}

	s := auth.String()

	if strings.Contains(s, "hunter2") {
		t.Errorf("String() = %q, must not contain the password", s)
	}

	if !strings.Contains(s, "admin") {
		t.Errorf("String() = %q, expected username to be visible", s)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Backend.Host == "" {
		t.Error("defaultConfig should have non-empty Backend.Host")
	}

	if cfg.Cache.MaxAgeSeconds != 60 {
		t.Errorf("defaultConfig Cache.MaxAgeSeconds = %d, want 60", cfg.Cache.MaxAgeSeconds)
	}

	if cfg.Session.RenewThresholdSeconds != 90 {
		t.Errorf("defaultConfig Session.RenewThresholdSeconds = %d, want 90", cfg.Session.RenewThresholdSeconds)
	}

	if cfg.Session.Workers != 1 {
		t.Errorf("defaultConfig Session.Workers = %d, want 1", cfg.Session.Workers)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
