package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default tunables. These back every zero-valued config field so a
// partially specified YAML file still yields a working system.
const (
	// DefaultMQTTBufferSize is the ring buffer capacity for recent messages.
	DefaultMQTTBufferSize = 500

	// DefaultReconnectPeriodMS is the broker reconnect retry period.
	DefaultReconnectPeriodMS = 5000

	// DefaultConnectTimeoutMS is the broker connection attempt timeout.
	DefaultConnectTimeoutMS = 30000

	// DefaultKeepaliveSec is the MQTT keepalive interval.
	DefaultKeepaliveSec = 60

	// DefaultHealthMaxRecords caps vitals history per device.
	DefaultHealthMaxRecords = 1000

	// DefaultHealthDedupeMS is the vitals redelivery-suppression window.
	DefaultHealthDedupeMS = 1000

	// DefaultLocationMaxHistory caps movement history per device.
	DefaultLocationMaxHistory = 100

	// DefaultLocationExpiryMS is how long a position fix counts as live.
	DefaultLocationExpiryMS = 5000

	// DefaultDeviceOfflineMS is how long without traffic before a device
	// counts as offline.
	DefaultDeviceOfflineMS = 60000

	// DefaultLowBatteryPercent is the battery level below which a device
	// is classified inactive.
	DefaultLowBatteryPercent = 20

	// DefaultAckDedupeMS is the ack redelivery-suppression window.
	DefaultAckDedupeMS = 4000

	// DefaultAckMaxRecent caps the recent-acks list.
	DefaultAckMaxRecent = 100

	// DefaultTagMaxRecent caps each of the tag store's three lists.
	DefaultTagMaxRecent = 200

	// DefaultAnchorMaxRecent caps the anchor-config list.
	DefaultAnchorMaxRecent = 200
)

// Config is the root configuration structure for UWB Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Stores   StoresConfig   `yaml:"stores"`
}

// SiteConfig identifies the care facility this instance serves.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// BufferSize is the ring buffer capacity for recent messages.
	BufferSize int `yaml:"buffer_size"`

	// ReconnectPeriodMS is the fixed retry period between reconnect
	// attempts.
	ReconnectPeriodMS int `yaml:"reconnect_period_ms"`

	// ConnectTimeoutMS bounds each connection attempt.
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`

	// KeepaliveSec is the MQTT keepalive interval.
	KeepaliveSec int `yaml:"keepalive_sec"`

	// CleanSession starts each connection without broker-side session
	// state. The bus rebuilds subscriptions itself on every connect, so
	// this is normally true.
	CleanSession bool `yaml:"clean_session"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// The connection URL is {protocol}://{host}:{port}{path}, with path
// applied only to WebSocket schemes.
type MQTTBrokerConfig struct {
	Protocol string `yaml:"protocol"` // ws, wss, tcp, or ssl
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Path     string `yaml:"path"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB telemetry export settings.
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

// StoresConfig contains per-store tunables. The dedupe windows were
// chosen empirically against real gateway redelivery behaviour and are
// deployment-configurable rather than hard constants.
type StoresConfig struct {
	Health   HealthStoreConfig   `yaml:"health"`
	Location LocationStoreConfig `yaml:"location"`
	Device   DeviceStoreConfig   `yaml:"device"`
	Ack      AckStoreConfig      `yaml:"ack"`
	Tag      TagStoreConfig      `yaml:"tag"`
	Anchor   AnchorStoreConfig   `yaml:"anchor"`
}

// HealthStoreConfig tunes the vitals store.
type HealthStoreConfig struct {
	MaxRecordsPerDevice int `yaml:"max_records_per_device"`
	DedupeWindowMS      int `yaml:"dedupe_window_ms"`
}

// LocationStoreConfig tunes the position store.
type LocationStoreConfig struct {
	MaxHistoryPerDevice int `yaml:"max_history_per_device"`
	ExpiryMS            int `yaml:"expiry_ms"`
}

// DeviceStoreConfig tunes the presence store.
type DeviceStoreConfig struct {
	OfflineThresholdMS int `yaml:"offline_threshold_ms"`
	LowBatteryPercent  int `yaml:"low_battery_percent"`
}

// AckStoreConfig tunes the acknowledgement store.
type AckStoreConfig struct {
	MaxRecent      int `yaml:"max_recent"`
	DedupeWindowMS int `yaml:"dedupe_window_ms"`
}

// TagStoreConfig tunes the tag telemetry store.
type TagStoreConfig struct {
	MaxRecent int `yaml:"max_recent"`
}

// AnchorStoreConfig tunes the anchor configuration store.
type AnchorStoreConfig struct {
	MaxRecent int `yaml:"max_recent"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: UWBCORE_SECTION_KEY
// For example: UWBCORE_DATABASE_PATH, UWBCORE_MQTT_HOST
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

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "UWB Core",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/uwbcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Protocol: "ws",
				Host:     "localhost",
				Port:     8083,
				Path:     "/mqtt",
				ClientID: "uwbcore",
			},
			QoS:               1,
			BufferSize:        DefaultMQTTBufferSize,
			ReconnectPeriodMS: DefaultReconnectPeriodMS,
			ConnectTimeoutMS:  DefaultConnectTimeoutMS,
			KeepaliveSec:      DefaultKeepaliveSec,
			CleanSession:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Stores: StoresConfig{
			Health: HealthStoreConfig{
				MaxRecordsPerDevice: DefaultHealthMaxRecords,
				DedupeWindowMS:      DefaultHealthDedupeMS,
			},
			Location: LocationStoreConfig{
				MaxHistoryPerDevice: DefaultLocationMaxHistory,
				ExpiryMS:            DefaultLocationExpiryMS,
			},
			Device: DeviceStoreConfig{
				OfflineThresholdMS: DefaultDeviceOfflineMS,
				LowBatteryPercent:  DefaultLowBatteryPercent,
			},
			Ack: AckStoreConfig{
				MaxRecent:      DefaultAckMaxRecent,
				DedupeWindowMS: DefaultAckDedupeMS,
			},
			Tag: TagStoreConfig{
				MaxRecent: DefaultTagMaxRecent,
			},
			Anchor: AnchorStoreConfig{
				MaxRecent: DefaultAnchorMaxRecent,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UWBCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("UWBCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("UWBCORE_MQTT_PROTOCOL"); v != "" {
		cfg.MQTT.Broker.Protocol = v
	}
	if v := os.Getenv("UWBCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UWBCORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("UWBCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UWBCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("UWBCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("UWBCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// validProtocols are the broker URL schemes the bus supports.
var validProtocols = map[string]bool{
	"ws": true, "wss": true, "tcp": true, "ssl": true,
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if !validProtocols[c.MQTT.Broker.Protocol] {
		errs = append(errs, "mqtt.broker.protocol must be ws, wss, tcp, or ssl")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.BufferSize < 1 {
		errs = append(errs, "mqtt.buffer_size must be at least 1")
	}

	// InfluxDB validation: connection details are required only when
	// export is enabled.
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set UWBCORE_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
