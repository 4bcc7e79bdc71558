package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Sonos bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Sonos     SonosConfig     `yaml:"sonos"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// BridgeConfig identifies this bridge instance on the MQTT bus.
type BridgeConfig struct {
	ID string `yaml:"id"`

	// HealthInterval is the health report period in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// SonosConfig contains speaker discovery and control settings.
type SonosConfig struct {
	// Addresses are speaker hosts to attach at startup in addition to
	// the addresses remembered in the database.
	Addresses []string `yaml:"addresses"`

	// DiscoveryTimeout is the length of the startup discovery window in seconds.
	DiscoveryTimeout int `yaml:"discovery_timeout"`

	// PairingWindow is the length of the discovery window opened after a
	// speaker is assumed disconnected, in seconds.
	PairingWindow int `yaml:"pairing_window"`

	// CommandTimeout bounds each device request in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// Interface restricts mDNS browsing to one network interface.
	Interface string `yaml:"interface"`

	// MediaDir is where album art files are written.
	MediaDir string `yaml:"media_dir"`

	Events EventListenerConfig `yaml:"events"`
}

// EventListenerConfig configures the HTTP listener that receives UPnP
// event notifications from speakers.
type EventListenerConfig struct {
	// Host is the address advertised to speakers in the callback URL.
	// Empty means detect the outbound interface address.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// SubscriptionTimeout is the requested subscription lifetime in seconds.
	SubscriptionTimeout int `yaml:"subscription_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT verification settings for the REST API.
// An empty secret disables authentication.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_SONOS_ADDRESSES
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
		Bridge: BridgeConfig{
			ID:             "sonos-bridge-01",
			HealthInterval: 30,
		},
		Sonos: SonosConfig{
			DiscoveryTimeout: 20,
			PairingWindow:    60,
			CommandTimeout:   5,
			MediaDir:         "./data/media",
			Events: EventListenerConfig{
				Port:                3500,
				SubscriptionTimeout: 1800,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-sonos.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-sonos",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}

	// Sonos
	if v := os.Getenv("GRAYLOGIC_SONOS_ADDRESSES"); v != "" {
		cfg.Sonos.Addresses = splitList(v)
	}
	if v := os.Getenv("GRAYLOGIC_SONOS_EVENTS_HOST"); v != "" {
		cfg.Sonos.Events.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_SONOS_EVENTS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Sonos.Events.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_SONOS_MEDIA_DIR"); v != "" {
		cfg.Sonos.MediaDir = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// splitList splits a comma separated environment value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1")
	}

	// Sonos validation
	if c.Sonos.DiscoveryTimeout < 0 {
		errs = append(errs, "sonos.discovery_timeout must not be negative")
	}
	if c.Sonos.PairingWindow < 1 {
		errs = append(errs, "sonos.pairing_window must be at least 1")
	}
	if c.Sonos.CommandTimeout < 1 {
		errs = append(errs, "sonos.command_timeout must be at least 1")
	}
	if c.Sonos.Events.Port < 1 || c.Sonos.Events.Port > 65535 {
		errs = append(errs, "sonos.events.port must be between 1 and 65535")
	}
	if c.Sonos.Events.SubscriptionTimeout < 60 {
		errs = append(errs, "sonos.events.subscription_timeout must be at least 60")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// A short secret makes forged tokens practical; empty disables auth.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
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

// GetCommandTimeout returns the per-request device timeout.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Sonos.CommandTimeout) * time.Second
}

// GetDiscoveryTimeout returns the startup discovery window.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Sonos.DiscoveryTimeout) * time.Second
}

// GetPairingWindow returns the re-pairing window opened after a disconnect.
func (c *Config) GetPairingWindow() time.Duration {
	return time.Duration(c.Sonos.PairingWindow) * time.Second
}

// GetHealthInterval returns the bridge health report period.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}
