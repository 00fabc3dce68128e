package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StandardHuePort is the only port Alexa-class discovery clients reliably
// accept in a bridge LOCATION header.
const StandardHuePort = 80

// Config is the root configuration structure for the Fauxmo responder.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Responder ResponderConfig `yaml:"responder"`
	Network   NetworkConfig   `yaml:"network"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ResponderConfig contains the discoverable device responder settings.
//
// The device list is read once at startup and is immutable for the
// lifetime of the process.
type ResponderConfig struct {
	Enabled bool `yaml:"enabled"`

	// Port is the TCP port of the emulated Hue bridge. Real Echo devices
	// ignore bridges advertised on anything other than 80.
	Port int `yaml:"port"`

	// TickInterval is how often the host loop polls the responder.
	TickInterval time.Duration `yaml:"tick_interval"`

	// TickBudget bounds the time a single poll may spend reading
	// discovery datagrams. Must be shorter than TickInterval.
	TickBudget time.Duration `yaml:"tick_budget"`

	// NotifyInterval enables periodic ssdp:alive announcements. Zero disables them.
	NotifyInterval time.Duration `yaml:"notify_interval"`

	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one virtual on/off appliance.
type DeviceConfig struct {
	Name string `yaml:"name"`

	// MQTTTopic, when set, receives a message every time a voice client
	// changes this device.
	MQTTTopic string `yaml:"mqtt_topic,omitempty"`
}

// NetworkConfig controls how the responder decides the network is ready.
type NetworkConfig struct {
	// Interface pins the network interface to advertise. Empty picks the
	// first up, non-loopback interface with an IPv4 address.
	Interface string `yaml:"interface"`

	// AdvertiseIP and AdvertiseMAC pin the advertised address, bypassing
	// interface probing. Both must be set together.
	AdvertiseIP  string `yaml:"advertise_ip"`
	AdvertiseMAC string `yaml:"advertise_mac"`
}

// DatabaseConfig contains SQLite settings for the state-change journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes journal rows older than this at startup. Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// HealthInterval is the period of health messages in seconds. Zero disables them.
	HealthInterval int `yaml:"health_interval"`
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

// APIConfig contains the admin HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
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
}

// WebSocketConfig contains WebSocket event stream settings.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FAUXMO_SECTION_KEY
// For example: FAUXMO_RESPONDER_PORT, FAUXMO_DATABASE_PATH
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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Responder: ResponderConfig{
			Enabled:      true,
			Port:         StandardHuePort,
			TickInterval: 50 * time.Millisecond,
			TickBudget:   10 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/fauxmo.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fauxmo",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthInterval: 30,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
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
		InfluxDB: InfluxDBConfig{
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
// Environment variables follow the pattern: FAUXMO_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Responder
	if v := os.Getenv("FAUXMO_RESPONDER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FAUXMO_RESPONDER_PORT: %w", err)
		}
		cfg.Responder.Port = port
	}
	if v := os.Getenv("FAUXMO_RESPONDER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FAUXMO_RESPONDER_ENABLED: %w", err)
		}
		cfg.Responder.Enabled = enabled
	}

	// Network
	if v := os.Getenv("FAUXMO_NETWORK_INTERFACE"); v != "" {
		cfg.Network.Interface = v
	}

	// Database
	if v := os.Getenv("FAUXMO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FAUXMO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FAUXMO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FAUXMO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("FAUXMO_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("FAUXMO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Duplicate device names are reported here so the operator sees them
// before any socket is opened.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Responder validation
	if c.Responder.Port < 1 || c.Responder.Port > 65535 {
		errs = append(errs, "responder.port must be between 1 and 65535")
	}
	if c.Responder.TickInterval <= 0 {
		errs = append(errs, "responder.tick_interval must be positive")
	}
	if c.Responder.TickBudget <= 0 || c.Responder.TickBudget >= c.Responder.TickInterval {
		errs = append(errs, "responder.tick_budget must be positive and shorter than responder.tick_interval")
	}
	if c.Responder.NotifyInterval < 0 {
		errs = append(errs, "responder.notify_interval must not be negative")
	}

	seen := make(map[string]int, len(c.Responder.Devices))
	for i, d := range c.Responder.Devices {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("responder.devices[%d].name is required", i))
			continue
		}
		if strings.TrimLeft(name, "0123456789") == "" {
			errs = append(errs, fmt.Sprintf("responder.devices[%d].name %q must not be all digits", i, d.Name))
			continue
		}
		key := strings.ToLower(name)
		if first, ok := seen[key]; ok {
			errs = append(errs, fmt.Sprintf("responder.devices[%d].name %q duplicates responder.devices[%d]", i, d.Name, first))
			continue
		}
		seen[key] = i
	}

	// Network validation
	if (c.Network.AdvertiseIP == "") != (c.Network.AdvertiseMAC == "") {
		errs = append(errs, "network.advertise_ip and network.advertise_mac must be set together")
	}
	if c.Network.AdvertiseIP != "" {
		if ip := net.ParseIP(c.Network.AdvertiseIP); ip == nil || ip.To4() == nil || ip.IsUnspecified() {
			errs = append(errs, "network.advertise_ip must be a usable IPv4 address")
		}
	}
	if c.Network.AdvertiseMAC != "" {
		if mac, err := net.ParseMAC(c.Network.AdvertiseMAC); err != nil || len(mac) != 6 {
			errs = append(errs, "network.advertise_mac must be a 48-bit MAC address")
		}
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0) {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DeviceNames returns the configured device names in declaration order.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Responder.Devices))
	for _, d := range c.Responder.Devices {
		names = append(names, strings.TrimSpace(d.Name))
	}
	return names
}

// ReadTimeout returns the read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
