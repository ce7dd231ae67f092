package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    protocol: "ws"
    host: "broker.example.com"
    port: 8083
    path: "/mqtt"
    client_id: "test-client"
  qos: 1
  buffer_size: 250
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

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.example.com")
	}

	if cfg.MQTT.BufferSize != 250 {
		t.Errorf("MQTT.BufferSize = %d, want 250", cfg.MQTT.BufferSize)
	}

	// Fields absent from the file keep their defaults.
	if cfg.MQTT.ReconnectPeriodMS != DefaultReconnectPeriodMS {
		t.Errorf("MQTT.ReconnectPeriodMS = %d, want default %d", cfg.MQTT.ReconnectPeriodMS, DefaultReconnectPeriodMS)
	}
	if cfg.Stores.Health.MaxRecordsPerDevice != DefaultHealthMaxRecords {
		t.Errorf("Stores.Health.MaxRecordsPerDevice = %d, want default %d",
			cfg.Stores.Health.MaxRecordsPerDevice, DefaultHealthMaxRecords)
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
site:
  id: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
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
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid protocol",
			mutate:  func(c *Config) { c.MQTT.Broker.Protocol = "http" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero buffer size",
			mutate:  func(c *Config) { c.MQTT.BufferSize = 0 },
			wantErr: true,
		},
		{
			name: "influx enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Token = ""
			},
			wantErr: true,
		},
		{
			name: "influx enabled with connection details",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Token = "token"
			},
			wantErr: false,
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

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("UWBCORE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("UWBCORE_MQTT_PROTOCOL", "wss")
	t.Setenv("UWBCORE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("UWBCORE_MQTT_PORT", "8084")
	t.Setenv("UWBCORE_MQTT_USERNAME", "testuser")
	t.Setenv("UWBCORE_MQTT_PASSWORD", "testpass")
	t.Setenv("UWBCORE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("UWBCORE_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Protocol != "wss" {
		t.Errorf("MQTT.Broker.Protocol = %q, want %q", cfg.MQTT.Broker.Protocol, "wss")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Broker.Port != 8084 {
		t.Errorf("MQTT.Broker.Port = %d, want 8084", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Protocol != "ws" {
		t.Errorf("defaultConfig MQTT.Broker.Protocol = %q, want ws", cfg.MQTT.Broker.Protocol)
	}

	if cfg.MQTT.BufferSize != DefaultMQTTBufferSize {
		t.Errorf("defaultConfig MQTT.BufferSize = %d, want %d", cfg.MQTT.BufferSize, DefaultMQTTBufferSize)
	}

	if cfg.Stores.Ack.DedupeWindowMS != DefaultAckDedupeMS {
		t.Errorf("defaultConfig Stores.Ack.DedupeWindowMS = %d, want %d",
			cfg.Stores.Ack.DedupeWindowMS, DefaultAckDedupeMS)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
