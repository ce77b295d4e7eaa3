package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/network"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
network:
  max_nodes: 50
  rate_limit_max: 5
  rate_limit_window: 10s
  stale_threshold: 2m
safety:
  default_emergency_stop: plant
  emergency_stops:
    - id: plant
      scope: global
  interlocks:
    - id: boiler-pressure
      type: critical
      action: vent_to_atmosphere
      signal_type: pressure
      field: value
      operator: ">"
      threshold: 12
remote:
  timeout: 15s
  sites:
    - id: north
      protocol: modbus
      address: 10.0.0.5:502
rules:
  - id: high-temp-alarm
    cooldown: 30s
    condition:
      type: threshold
      signal_type: temperature
      field: value
      operator: ">"
      value: 80
    action:
      type: raise_alarm
      severity: warning
      message: temperature above 80
loops:
  - id: tank-level
    type: pid
    setpoint: 50
    params:
      kp: 1.2
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  port: 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Network.RateLimitWindow != 10*time.Second {
		t.Errorf("Network.RateLimitWindow = %v, want 10s", cfg.Network.RateLimitWindow)
	}
	if cfg.Network.TickInterval != 10*time.Millisecond {
		t.Errorf("Network.TickInterval = %v, want default 10ms", cfg.Network.TickInterval)
	}
	if len(cfg.Safety.Interlocks) != 1 || cfg.Safety.Interlocks[0].Threshold != 12 {
		t.Errorf("Safety.Interlocks = %+v", cfg.Safety.Interlocks)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Cooldown != 30*time.Second {
		t.Errorf("Rules = %+v", cfg.Rules)
	}
	if len(cfg.Loops) != 1 || cfg.Loops[0].Params["kp"] != 1.2 {
		t.Errorf("Loops = %+v", cfg.Loops)
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

// TestLoad_ExampleConfig keeps configs/config.yaml loadable and seedable.
func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Rules) != 3 || len(cfg.Loops) != 3 {
		t.Errorf("rules = %d, loops = %d, want 3 and 3", len(cfg.Rules), len(cfg.Loops))
	}

	rt, err := network.New(cfg.RuntimeConfig(), clock.NewManual(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}
	defer rt.Shutdown()

	if got := len(rt.Loops()); got != 3 {
		t.Errorf("seeded loops = %d, want 3", got)
	}
	if got := len(rt.RemoteSites()); got != 2 {
		t.Errorf("seeded remote sites = %d, want 2", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Site:     SiteConfig{ID: "site-001"},
			Database: DatabaseConfig{Path: "/data/controlnet.db"},
			MQTT:     MQTTConfig{QoS: 1},
			API:      APIConfig{Port: 8080},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "negative audit retention", mutate: func(c *Config) { c.Database.AuditRetentionDays = -1 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "negative max nodes", mutate: func(c *Config) { c.Network.MaxNodes = -1 }, wantErr: true},
		{name: "degraded threshold above one", mutate: func(c *Config) { c.Network.DegradedThreshold = 1.5 }, wantErr: true},
		{
			name: "unsupported remote protocol",
			mutate: func(c *Config) {
				c.Remote.Sites = []RemoteSiteConfig{{ID: "north", Protocol: "bacnet"}}
			},
			wantErr: true,
		},
		{
			name: "remote protocol alias",
			mutate: func(c *Config) {
				c.Remote.Sites = []RemoteSiteConfig{{ID: "north", Protocol: "opc-ua"}}
			},
		},
		{
			name:    "kafka enabled without topic",
			mutate:  func(c *Config) { c.Kafka = KafkaConfig{Enabled: true, Brokers: []string{"k:9092"}} },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
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

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{API: APIConfig{Port: 8080}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"site.id", "database.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_ValidateDuplicateRules(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rules = []automation.RuleSpec{{ID: "dup"}, {ID: "dup"}}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicated") {
		t.Errorf("Validate() error = %v, want duplicate rule error", err)
	}
}

func TestConfig_RuntimeConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Network.MaxNodes = 12
	cfg.Safety.PermitSweepInterval = 2 * time.Minute
	cfg.Safety.DisableDefaults = true
	cfg.Remote.Sites = []RemoteSiteConfig{{ID: "north", Protocol: "modbus", Address: "10.0.0.5:502"}}

	rc := cfg.RuntimeConfig()

	if rc.MaxNodes != 12 {
		t.Errorf("MaxNodes = %d, want 12", rc.MaxNodes)
	}
	if rc.PermitSweep != 2*time.Minute {
		t.Errorf("PermitSweep = %v, want 2m", rc.PermitSweep)
	}
	if !rc.NoDefaultSafety {
		t.Error("NoDefaultSafety = false, want true")
	}
	if rc.DefaultEStop != "main" {
		t.Errorf("DefaultEStop = %q, want main", rc.DefaultEStop)
	}
	if len(rc.RemoteSites) != 1 || rc.RemoteSites[0].Address != "10.0.0.5:502" {
		t.Errorf("RemoteSites = %+v", rc.RemoteSites)
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

	t.Setenv("CONTROLNET_DATABASE_PATH", "/custom/path.db")
	t.Setenv("CONTROLNET_MQTT_HOST", "mqtt.example.com")
	t.Setenv("CONTROLNET_MQTT_USERNAME", "testuser")
	t.Setenv("CONTROLNET_MQTT_PASSWORD", "testpass")
	t.Setenv("CONTROLNET_API_HOST", "192.168.1.1")
	t.Setenv("CONTROLNET_API_PORT", "9090")
	t.Setenv("CONTROLNET_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("CONTROLNET_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CONTROLNET_NETWORK_MAX_NODES", "not-a-number")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
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
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	// Unparseable numbers keep the default.
	if cfg.Network.MaxNodes != 1000 {
		t.Errorf("Network.MaxNodes = %d, want 1000", cfg.Network.MaxNodes)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONTROLNET_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}

	t.Setenv("CONTROLNET_CONFIG", "/etc/controlnet.yaml")
	if got := Path(); got != "/etc/controlnet.yaml" {
		t.Errorf("Path() = %q, want /etc/controlnet.yaml", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate: %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
