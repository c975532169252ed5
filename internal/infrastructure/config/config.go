package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the FleetDesk client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Storage   StorageConfig   `yaml:"storage"`
	Console   ConsoleConfig   `yaml:"console"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains settings for the fleet server's HTTP API.
type APIConfig struct {
	// BaseURL is the server root (e.g. "https://fleet.example.com").
	// Empty means Origin is used.
	BaseURL string `yaml:"base_url"`

	// Origin stands in for the page origin a browser client would have.
	Origin string `yaml:"origin"`

	// Prefix is prepended to device endpoints. Auth endpoints are not prefixed.
	Prefix string `yaml:"prefix"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// RealtimeConfig contains push channel settings.
type RealtimeConfig struct {
	// BaseURL overrides the API base URL for the push channel only.
	BaseURL string `yaml:"base_url"`

	// Path is the absolute channel path appended to the base URL.
	Path string `yaml:"path"`

	// ReconnectDelay is the fixed wait before reconnecting, in seconds.
	ReconnectDelay int `yaml:"reconnect_delay"`

	// DialTimeout bounds the websocket handshake, in seconds.
	DialTimeout int `yaml:"dial_timeout"`
}

// StorageConfig contains the SQLite settings for durable client state.
type StorageConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ConsoleConfig contains settings for the local HTTP console.
type ConsoleConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	Host     string               `yaml:"host"`
	Port     int                  `yaml:"port"`
	Timeouts ConsoleTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig           `yaml:"cors"`
}

// ConsoleTimeoutConfig contains HTTP timeout settings in seconds.
type ConsoleTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins means same-origin only.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the console's local event socket.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker settings for the device update relay.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
	Reconnect   MQTTReconnect    `yaml:"reconnect"`
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

// MQTTReconnect contains MQTT reconnection settings in seconds.
type MQTTReconnect struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB settings for the stats exporter.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLEETDESK_SECTION_KEY
// For example: FLEETDESK_API_BASE_URL, FLEETDESK_STORAGE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
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
			Origin:  "http://localhost:8001",
			Prefix:  "/api",
			Timeout: 10,
		},
		Realtime: RealtimeConfig{
			Path:           "/ws",
			ReconnectDelay: 5,
			DialTimeout:    10,
		},
		Storage: StorageConfig{
			Path:        "./data/fleetdesk.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Console: ConsoleConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: ConsoleTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleetdesk-client",
			},
			QoS:         1,
			TopicPrefix: "fleetdesk",
			Reconnect: MQTTReconnect{
				InitialDelay: 1,
				MaxDelay:     60,
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
// Environment variables follow the pattern: FLEETDESK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("FLEETDESK_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("FLEETDESK_ORIGIN"); v != "" {
		cfg.API.Origin = v
	}

	// Realtime
	if v := os.Getenv("FLEETDESK_WS_BASE_URL"); v != "" {
		cfg.Realtime.BaseURL = v
	}

	// Storage
	if v := os.Getenv("FLEETDESK_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}

	// MQTT
	if v := os.Getenv("FLEETDESK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLEETDESK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLEETDESK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FLEETDESK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("FLEETDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.API.BaseURL != "" && !isAbsoluteURL(c.API.BaseURL) {
		errs = append(errs, "api.base_url must be an absolute URL")
	}
	if c.API.BaseURL == "" && c.API.Origin == "" {
		errs = append(errs, "api.origin is required when api.base_url is empty")
	}
	if c.API.Timeout < 0 {
		errs = append(errs, "api.timeout must not be negative")
	}

	if c.Realtime.BaseURL != "" && !isAbsoluteURL(c.Realtime.BaseURL) {
		errs = append(errs, "realtime.base_url must be an absolute URL")
	}
	if !strings.HasPrefix(c.Realtime.Path, "/") {
		errs = append(errs, "realtime.path must start with /")
	}
	if c.Realtime.ReconnectDelay <= 0 {
		errs = append(errs, "realtime.reconnect_delay must be positive")
	}

	if c.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}

	if c.Console.Enabled && (c.Console.Port < 1 || c.Console.Port > 65535) {
		errs = append(errs, "console.port must be between 1 and 65535")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// APIBaseURL returns the HTTP base the client talks to.
func (c *Config) APIBaseURL() string {
	if c.API.BaseURL != "" {
		return c.API.BaseURL
	}
	return c.API.Origin
}

// RealtimeBaseURL returns the base the push channel URL is derived from:
// realtime.base_url, then api.base_url, then api.origin.
func (c *Config) RealtimeBaseURL() string {
	if c.Realtime.BaseURL != "" {
		return c.Realtime.BaseURL
	}
	return c.APIBaseURL()
}

// GetAPITimeout returns the HTTP request timeout as a Duration.
func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.API.Timeout) * time.Second
}

// GetReconnectDelay returns the realtime reconnect delay as a Duration.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.Realtime.ReconnectDelay) * time.Second
}

// GetDialTimeout returns the realtime handshake timeout as a Duration.
func (c *Config) GetDialTimeout() time.Duration {
	return time.Duration(c.Realtime.DialTimeout) * time.Second
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
