package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HomeMatic Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Instance Instance       `yaml:"instance"`
	Backend  BackendConfig  `yaml:"backend"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Session  SessionConfig  `yaml:"session"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Instance identifies this installation. The ID becomes the prefix for
// entity identifiers that are not tied to a physical device address, so it
// must remain stable across restarts once assigned.
type Instance struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// BackendConfig contains CCU backend connection settings.
type BackendConfig struct {
	Host string            `yaml:"host"`
	Port int               `yaml:"port"`
	Path string            `yaml:"path"`
	TLS  BackendTLSConfig  `yaml:"tls"`
	Auth BackendAuthConfig `yaml:"auth"`
}

// BackendTLSConfig contains TLS settings for the backend connection.
type BackendTLSConfig struct {
	Enabled   bool `yaml:"enabled"`
	VerifyTLS bool `yaml:"verify_tls"`
}

// BackendAuthConfig contains backend login credentials.
// Credentials should be supplied via environment variables, not the file.
type BackendAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// String implements fmt.Stringer with the password redacted.
func (a BackendAuthConfig) String() string {
	return fmt.Sprintf("{Username:%s Password:***}", a.Username)
}

// StorageConfig contains paths for locally persisted state.
type StorageConfig struct {
	// Folder is the base directory for all persisted files.
	Folder string `yaml:"folder"`

	// DescriptorDB is the SQLite database holding device and paramset
	// descriptions, relative to Folder unless absolute.
	DescriptorDB string `yaml:"descriptor_db"`

	// UnignoreFile is the name of the optional parameter override file
	// inside Folder. A missing file is not an error.
	UnignoreFile string `yaml:"unignore_file"`

	// ScriptDir is the directory holding backend script sources, loaded
	// on first use and cached per name.
	ScriptDir string `yaml:"script_dir"`
}

// CacheConfig contains value cache settings.
type CacheConfig struct {
	// MaxAgeSeconds is how long a cached reading stays usable.
	MaxAgeSeconds int `yaml:"max_age_seconds"`
}

// SessionConfig contains backend session settings.
type SessionConfig struct {
	// RenewThresholdSeconds is the session age beyond which a renewal is
	// attempted before dispatching a call.
	RenewThresholdSeconds int `yaml:"renew_threshold_seconds"`

	// Workers bounds the number of concurrent calls on one connection.
	Workers int `yaml:"workers"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// value recorder.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains diagnostics HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HMCORE_SECTION_KEY
// For example: HMCORE_BACKEND_HOST, HMCORE_BACKEND_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// An instance ID must exist before entity identifiers are generated;
	// one is minted here if neither file nor environment supplied it.
	if cfg.Instance.ID == "" {
		cfg.Instance.ID = "hmcore-" + uuid.NewString()[:8]
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Instance: Instance{
			Name: "HomeMatic Core",
		},
		Backend: BackendConfig{
			Host: "localhost",
			Port: 80,
			Path: "/api/homematic.cgi",
		},
		Storage: StorageConfig{
			Folder:       "./data",
			DescriptorDB: "descriptors.db",
			UnignoreFile: "unignore",
			ScriptDir:    "./scripts/rega",
		},
		Cache: CacheConfig{
			MaxAgeSeconds: 60,
		},
		Session: SessionConfig{
			RenewThresholdSeconds: 90,
			Workers:               1,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hmcore",
			},
			QoS:         1,
			TopicPrefix: "hmcore",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HMCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Instance
	if v := os.Getenv("HMCORE_INSTANCE_ID"); v != "" {
		cfg.Instance.ID = v
	}

	// Backend
	if v := os.Getenv("HMCORE_BACKEND_HOST"); v != "" {
		cfg.Backend.Host = v
	}
	if v := os.Getenv("HMCORE_BACKEND_USERNAME"); v != "" {
		cfg.Backend.Auth.Username = v
	}
	if v := os.Getenv("HMCORE_BACKEND_PASSWORD"); v != "" {
		cfg.Backend.Auth.Password = v
	}

	// Storage
	if v := os.Getenv("HMCORE_STORAGE_FOLDER"); v != "" {
		cfg.Storage.Folder = v
	}

	// MQTT
	if v := os.Getenv("HMCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HMCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HMCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HMCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("HMCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Instance validation
	if c.Instance.ID == "" {
		errs = append(errs, "instance.id is required")
	}

	// Backend validation
	if c.Backend.Host == "" {
		errs = append(errs, "backend.host is required")
	}
	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		errs = append(errs, "backend.port must be between 1 and 65535")
	}

	// Storage validation
	if c.Storage.Folder == "" {
		errs = append(errs, "storage.folder is required")
	}

	// Cache validation
	if c.Cache.MaxAgeSeconds < 1 {
		errs = append(errs, "cache.max_age_seconds must be at least 1")
	}

	// Session validation
	if c.Session.RenewThresholdSeconds < 1 {
		errs = append(errs, "session.renew_threshold_seconds must be at least 1")
	}
	if c.Session.Workers < 1 {
		errs = append(errs, "session.workers must be at least 1")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CacheMaxAge returns the value cache TTL as a Duration.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeSeconds) * time.Second
}

// SessionRenewThreshold returns the session renewal threshold as a Duration.
func (c *Config) SessionRenewThreshold() time.Duration {
	return time.Duration(c.Session.RenewThresholdSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
