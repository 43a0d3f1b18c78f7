package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  name: "fermenter-a"
  topic_root: "lab/reactor1"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
telemetry:
  buffer_size: 250
api:
  host: "0.0.0.0"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.TopicRoot != "lab/reactor1" {
		t.Errorf("Device.TopicRoot = %q, want %q", cfg.Device.TopicRoot, "lab/reactor1")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Telemetry.BufferSize != 250 {
		t.Errorf("Telemetry.BufferSize = %d, want 250", cfg.Telemetry.BufferSize)
	}
	// Channels were not given, so the stock set applies.
	if len(cfg.Channels) != 3 {
		t.Fatalf("len(Channels) = %d, want 3", len(cfg.Channels))
	}
	// Session defaults survive a partial mqtt section.
	if cfg.MQTT.Session.KeepAlive != 60 {
		t.Errorf("MQTT.Session.KeepAlive = %d, want 60", cfg.MQTT.Session.KeepAlive)
	}
}

func TestLoad_CustomChannelsReplaceDefaults(t *testing.T) {
	content := `
channels:
  - name: "do"
    title: "Dissolved Oxygen"
    unit: "%"
    min: 0
    max: 100
    step: 1
    default: 40
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Channels) != 1 {
		t.Fatalf("len(Channels) = %d, want 1", len(cfg.Channels))
	}
	if cfg.Channels[0].Name != "do" || cfg.Channels[0].Default != 40 {
		t.Errorf("Channels[0] = %+v", cfg.Channels[0])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
device:
  topic_root: ""
api:
  port: 8080
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty device.topic_root, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing topic root",
			mutate:  func(c *Config) { c.Device.TopicRoot = "/" },
			wantErr: "device.topic_root is required",
		},
		{
			name:    "wildcard topic root",
			mutate:  func(c *Config) { c.Device.TopicRoot = "bio/+" },
			wantErr: "must not contain wildcards",
		},
		{
			name:    "leading slash topic root",
			mutate:  func(c *Config) { c.Device.TopicRoot = "/bio" },
			wantErr: "must not start or end with /",
		},
		{
			name:    "trailing slash topic root",
			mutate:  func(c *Config) { c.Device.TopicRoot = "bio/v1/" },
			wantErr: "must not start or end with /",
		},
		{
			name:    "no channels",
			mutate:  func(c *Config) { c.Channels = nil },
			wantErr: "at least one channel",
		},
		{
			name: "duplicate channel",
			mutate: func(c *Config) {
				c.Channels = append(c.Channels, c.Channels[0])
			},
			wantErr: "is duplicated",
		},
		{
			name:    "channel name with separator",
			mutate:  func(c *Config) { c.Channels[0].Name = "set/temp" },
			wantErr: "single topic level",
		},
		{
			name:    "min above max",
			mutate:  func(c *Config) { c.Channels[1].Min = 20 },
			wantErr: "min must not exceed max",
		},
		{
			name:    "default outside range",
			mutate:  func(c *Config) { c.Channels[2].Default = 500 },
			wantErr: "default must lie within",
		},
		{
			name:    "empty buffer",
			mutate:  func(c *Config) { c.Telemetry.BufferSize = 0 },
			wantErr: "telemetry.buffer_size",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "invalid api port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "b" },
			wantErr: "influxdb.url",
		},
		{
			name: "file logging without path",
			mutate: func(c *Config) {
				c.Logging.Output = "file"
				c.Logging.File.Path = ""
			},
			wantErr: "logging.file.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Path = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"database.path", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
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

	t.Setenv("BIOCONSOLE_DEVICE_TOPIC_ROOT", "plant/r2")
	t.Setenv("BIOCONSOLE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("BIOCONSOLE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("BIOCONSOLE_MQTT_PORT", "8883")
	t.Setenv("BIOCONSOLE_MQTT_USERNAME", "testuser")
	t.Setenv("BIOCONSOLE_MQTT_PASSWORD", "testpass")
	t.Setenv("BIOCONSOLE_API_HOST", "192.168.1.1")
	t.Setenv("BIOCONSOLE_API_PORT", "not-a-number")
	t.Setenv("BIOCONSOLE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("BIOCONSOLE_LOGGING_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Device.TopicRoot != "plant/r2" {
		t.Errorf("Device.TopicRoot = %q, want %q", cfg.Device.TopicRoot, "plant/r2")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	// Unparseable ports are ignored.
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
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

	if cfg.Device.TopicRoot != "bio/v1" {
		t.Errorf("defaultConfig Device.TopicRoot = %q, want bio/v1", cfg.Device.TopicRoot)
	}
	if cfg.Telemetry.BufferSize != 100 {
		t.Errorf("defaultConfig Telemetry.BufferSize = %d, want 100", cfg.Telemetry.BufferSize)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}

func TestDefaultChannels(t *testing.T) {
	want := map[string]struct {
		def     float64
		integer bool
	}{
		"temp": {37.0, false},
		"ph":   {7.0, false},
		"rpm":  {100, true},
	}

	chans := DefaultChannels()
	if len(chans) != len(want) {
		t.Fatalf("len(DefaultChannels()) = %d, want %d", len(chans), len(want))
	}
	for _, ch := range chans {
		w, ok := want[ch.Name]
		if !ok {
			t.Errorf("unexpected channel %q", ch.Name)
			continue
		}
		if ch.Default != w.def || ch.Integer != w.integer {
			t.Errorf("channel %q = default %v integer %v, want %v %v", ch.Name, ch.Default, ch.Integer, w.def, w.integer)
		}
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load("../../../configs/config.yaml")
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}

	if cfg.Device.TopicRoot != "bio/v1" || len(cfg.Channels) != 3 {
		t.Errorf("device=%+v channels=%d", cfg.Device, len(cfg.Channels))
	}
	if !cfg.Channels[2].Integer || cfg.Telemetry.BufferSize != 100 {
		t.Errorf("rpm=%+v buffer=%d", cfg.Channels[2], cfg.Telemetry.BufferSize)
	}
}
