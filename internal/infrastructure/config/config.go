package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the WhatsApp gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Sessions SessionsConfig `yaml:"sessions"`
	Media    MediaConfig    `yaml:"media"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Influx   InfluxConfig   `yaml:"influx"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Secret is the shared API key required in the X-Api-Key header on
	// authenticated routes. Health and QR display routes are exempt.
	Secret string `yaml:"secret"`

	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// SessionsConfig contains per-tenant session lifecycle settings.
type SessionsConfig struct {
	// AuthDir is the base directory for per-tenant authentication state.
	// Each tenant gets an opaque subdirectory owned by the automation client.
	AuthDir string `yaml:"auth_dir"`

	// Idle is how long a session may sit unused before its client is torn
	// down (authentication state is preserved). Zero means tear down
	// immediately after every successful send. Values above zero but below
	// the reaper's minimum threshold disable idle teardown entirely.
	Idle time.Duration `yaml:"idle"`

	// ReadyTimeout bounds how long an operation waits for a session to
	// become usable before failing with a service-unavailable error.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// UnmarshalYAML decodes duration fields from strings like "30s" or "5m".
// Absent fields keep their defaults.
func (c *SessionsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		AuthDir      string `yaml:"auth_dir"`
		Idle         string `yaml:"idle"`
		ReadyTimeout string `yaml:"ready_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.AuthDir != "" {
		c.AuthDir = raw.AuthDir
	}
	if err := setDuration("sessions.idle", raw.Idle, &c.Idle); err != nil {
		return err
	}
	return setDuration("sessions.ready_timeout", raw.ReadyTimeout, &c.ReadyTimeout)
}

// MediaConfig contains uploaded-media storage settings.
type MediaConfig struct {
	// Dir is the base directory for retained uploads, one subdirectory per tenant.
	Dir string `yaml:"dir"`

	// MaxUploadBytes is the size ceiling for a single uploaded file.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Retention is how long uploaded artifacts are kept before the sweeper
	// removes them. Zero disables sweeping.
	Retention time.Duration `yaml:"retention"`

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// UnmarshalYAML decodes duration fields from strings like "72h".
// Absent fields keep their defaults.
func (c *MediaConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Dir            string `yaml:"dir"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
		Retention      string `yaml:"retention"`
		SweepInterval  string `yaml:"sweep_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Dir != "" {
		c.Dir = raw.Dir
	}
	if raw.MaxUploadBytes != 0 {
		c.MaxUploadBytes = raw.MaxUploadBytes
	}
	if err := setDuration("media.retention", raw.Retention, &c.Retention); err != nil {
		return err
	}
	return setDuration("media.sweep_interval", raw.SweepInterval, &c.SweepInterval)
}

// BridgeConfig contains settings for the external automation sidecar process.
type BridgeConfig struct {
	// Binary is the path to the bridge executable (typically a Node runtime).
	Binary string `yaml:"binary"`

	// Args are arguments passed before the per-tenant flags (e.g. the
	// bridge script path).
	Args []string `yaml:"args"`

	// StartTimeout is how long to wait for the sidecar to report startup.
	StartTimeout time.Duration `yaml:"start_timeout"`

	// GracefulTimeout is how long to wait for graceful shutdown before SIGKILL.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// UnmarshalYAML decodes duration fields from strings like "90s".
// Absent fields keep their defaults.
func (c *BridgeConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Binary          string   `yaml:"binary"`
		Args            []string `yaml:"args"`
		StartTimeout    string   `yaml:"start_timeout"`
		GracefulTimeout string   `yaml:"graceful_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Binary != "" {
		c.Binary = raw.Binary
	}
	if raw.Args != nil {
		c.Args = raw.Args
	}
	if err := setDuration("bridge.start_timeout", raw.StartTimeout, &c.StartTimeout); err != nil {
		return err
	}
	return setDuration("bridge.graceful_timeout", raw.GracefulTimeout, &c.GracefulTimeout)
}

// setDuration parses a duration string into dst. An empty string means the
// field was absent and dst keeps its current value.
func setDuration(field, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", field, raw)
	}
	*dst = d
	return nil
}

// DatabaseConfig contains SQLite database settings for the send audit log.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains optional MQTT lifecycle-event publishing settings.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
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

// InfluxConfig contains optional InfluxDB send-metrics settings.
type InfluxConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
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
// Environment variables follow the pattern: WAGATEWAY_SECTION_KEY
// For example: WAGATEWAY_API_SECRET, WAGATEWAY_SESSIONS_IDLE_MS
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		Sessions: SessionsConfig{
			AuthDir:      "./data/auth",
			Idle:         5 * time.Minute,
			ReadyTimeout: 45 * time.Second,
		},
		Media: MediaConfig{
			Dir:            "./data/media",
			MaxUploadBytes: 16 << 20,
			Retention:      72 * time.Hour,
			SweepInterval:  time.Hour,
		},
		Bridge: BridgeConfig{
			Binary:          "node",
			Args:            []string{"bridge/index.js"},
			StartTimeout:    90 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/wagateway.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wagateway",
			},
			QoS: 1,
		},
		Influx: InfluxConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WAGATEWAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("WAGATEWAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("WAGATEWAY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("WAGATEWAY_API_SECRET"); v != "" {
		cfg.API.Secret = v
	}

	// Sessions
	if v := os.Getenv("WAGATEWAY_SESSIONS_AUTH_DIR"); v != "" {
		cfg.Sessions.AuthDir = v
	}
	if v := os.Getenv("WAGATEWAY_SESSIONS_IDLE_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			cfg.Sessions.Idle = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("WAGATEWAY_SESSIONS_READY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Sessions.ReadyTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	// Media
	if v := os.Getenv("WAGATEWAY_MEDIA_DIR"); v != "" {
		cfg.Media.Dir = v
	}
	if v := os.Getenv("WAGATEWAY_MEDIA_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Media.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("WAGATEWAY_MEDIA_RETENTION_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 {
			cfg.Media.Retention = time.Duration(h) * time.Hour
		}
	}

	// Bridge
	if v := os.Getenv("WAGATEWAY_BRIDGE_BINARY"); v != "" {
		cfg.Bridge.Binary = v
	}

	// Database
	if v := os.Getenv("WAGATEWAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT credentials
	if v := os.Getenv("WAGATEWAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WAGATEWAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Influx token
	if v := os.Getenv("WAGATEWAY_INFLUX_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// The API secret is REQUIRED. The gateway dispatches messages on behalf
	// of linked accounts; an unauthenticated instance lets anyone send as
	// any tenant.
	const minSecretLength = 16
	if c.API.Secret == "" {
		errs = append(errs, "api.secret is required (set WAGATEWAY_API_SECRET environment variable)")
	} else if len(c.API.Secret) < minSecretLength {
		errs = append(errs, "api.secret must be at least 16 characters")
	}

	if c.Sessions.AuthDir == "" {
		errs = append(errs, "sessions.auth_dir is required")
	}
	if c.Sessions.Idle < 0 {
		errs = append(errs, "sessions.idle must not be negative")
	}
	if c.Sessions.ReadyTimeout <= 0 {
		errs = append(errs, "sessions.ready_timeout must be positive")
	}

	if c.Media.Dir == "" {
		errs = append(errs, "media.dir is required")
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, "media.max_upload_bytes must be positive")
	}

	if c.Bridge.Binary == "" {
		errs = append(errs, "bridge.binary is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.Influx.Enabled {
		if c.Influx.URL == "" {
			errs = append(errs, "influx.url is required when influx is enabled")
		}
		if c.Influx.Bucket == "" {
			errs = append(errs, "influx.bucket is required when influx is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
