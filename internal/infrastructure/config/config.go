package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/control"
	"github.com/nerrad567/controlnet-core/internal/network"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/remote/codec"
	"github.com/nerrad567/controlnet-core/internal/safety"
)

// DefaultPath is used when CONTROLNET_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for ControlNet Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig            `yaml:"site"`
	Network   NetworkConfig         `yaml:"network"`
	Safety    SafetyConfig          `yaml:"safety"`
	Remote    RemoteConfig          `yaml:"remote"`
	Rules     []automation.RuleSpec `yaml:"rules"`
	Loops     []control.LoopSpec    `yaml:"loops"`
	Database  DatabaseConfig        `yaml:"database"`
	MQTT      MQTTConfig            `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig        `yaml:"influxdb"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	API       APIConfig             `yaml:"api"`
	WebSocket WebSocketConfig       `yaml:"websocket"`
	Logging   LoggingConfig         `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// NetworkConfig contains control network runtime settings.
// Durations are written as Go duration strings ("10ms", "5m").
type NetworkConfig struct {
	MaxNodes               int           `yaml:"max_nodes"`
	RateLimitMax           int           `yaml:"rate_limit_max"`
	RateLimitWindow        time.Duration `yaml:"rate_limit_window"`
	StaleThreshold         time.Duration `yaml:"stale_threshold"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
	TickInterval           time.Duration `yaml:"tick_interval"`
	RuleTickInterval       time.Duration `yaml:"rule_tick_interval"`
	HealthInterval         time.Duration `yaml:"health_interval"`
	RuleEvaluationInterval time.Duration `yaml:"rule_evaluation_interval"`
	HistorySize            int           `yaml:"history_size"`
	MaxSignalDepth         int           `yaml:"max_signal_depth"`
	MaxAlarms              int           `yaml:"max_alarms"`
	DegradedThreshold      float64       `yaml:"degraded_threshold"`
}

// SafetyConfig contains interlock, emergency stop and permit settings.
type SafetyConfig struct {
	Interlocks           []safety.InterlockSpec     `yaml:"interlocks"`
	EmergencyStops       []safety.EmergencyStopSpec `yaml:"emergency_stops"`
	DefaultEmergencyStop string                     `yaml:"default_emergency_stop"`
	PermitSweepInterval  time.Duration              `yaml:"permit_sweep_interval"`

	// DisableDefaults skips the built-in interlocks and emergency stop.
	DisableDefaults bool `yaml:"disable_defaults"`
}

// RemoteConfig contains remote site settings.
type RemoteConfig struct {
	Timeout     time.Duration      `yaml:"timeout"`
	TopicPrefix string             `yaml:"topic_prefix"`
	Sites       []RemoteSiteConfig `yaml:"sites"`
}

// RemoteSiteConfig declares one remote collaborator.
type RemoteSiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"`
	Address  string `yaml:"address"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// AuditRetentionDays prunes older audit entries. Zero keeps everything.
	AuditRetentionDays int `yaml:"audit_retention_days"`
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

// KafkaConfig contains Kafka event export settings.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout int      `yaml:"batch_timeout_ms"`
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
// Environment variables follow the pattern: CONTROLNET_SECTION_KEY
// For example: CONTROLNET_DATABASE_PATH, CONTROLNET_API_PORT
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

// Path returns the config file location from CONTROLNET_CONFIG, or DefaultPath.
func Path() string {
	if v := os.Getenv("CONTROLNET_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "ControlNet",
			Timezone: "UTC",
		},
		Network: NetworkConfig{
			MaxNodes:          1000,
			RateLimitMax:      100,
			RateLimitWindow:   time.Second,
			StaleThreshold:    5 * time.Minute,
			SweepInterval:     5 * time.Minute,
			TickInterval:      10 * time.Millisecond,
			RuleTickInterval:  time.Second,
			HealthInterval:    30 * time.Second,
			HistorySize:       1000,
			MaxSignalDepth:    8,
			MaxAlarms:         500,
			DegradedThreshold: 0.7,
		},
		Safety: SafetyConfig{
			DefaultEmergencyStop: safety.DefaultEStopID,
			PermitSweepInterval:  time.Minute,
		},
		Remote: RemoteConfig{
			Timeout:     remote.DefaultTimeout,
			TopicPrefix: remote.DefaultTopicPrefix,
		},
		Database: DatabaseConfig{
			Path:        "./data/controlnet.db",
			WALMode:     true,
			BusyTimeout: 5,

			AuditRetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "", // derived from the site ID
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "controlnet",
			Bucket:        "controlnet",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "controlnet.events",
			BatchSize:    100,
			BatchTimeout: 50,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
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
// Environment variables follow the pattern: CONTROLNET_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONTROLNET_SITE_ID"); v != "" {
		cfg.Site.ID = v
	}

	// Network
	if n, ok := envInt("CONTROLNET_NETWORK_MAX_NODES"); ok {
		cfg.Network.MaxNodes = n
	}
	if n, ok := envInt("CONTROLNET_NETWORK_RATE_LIMIT_MAX"); ok {
		cfg.Network.RateLimitMax = n
	}

	// Database
	if v := os.Getenv("CONTROLNET_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if n, ok := envInt("CONTROLNET_DATABASE_AUDIT_RETENTION_DAYS"); ok {
		cfg.Database.AuditRetentionDays = n
	}

	// MQTT
	if v := os.Getenv("CONTROLNET_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CONTROLNET_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CONTROLNET_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CONTROLNET_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if n, ok := envInt("CONTROLNET_API_PORT"); ok {
		cfg.API.Port = n
	}

	// InfluxDB
	if v := os.Getenv("CONTROLNET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Kafka
	if v := os.Getenv("CONTROLNET_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	// Logging
	if v := os.Getenv("CONTROLNET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Network.MaxNodes < 0 {
		errs = append(errs, "network.max_nodes must not be negative")
	}
	if c.Network.RateLimitMax < 0 {
		errs = append(errs, "network.rate_limit_max must not be negative")
	}
	if c.Network.DegradedThreshold < 0 || c.Network.DegradedThreshold > 1 {
		errs = append(errs, "network.degraded_threshold must be between 0 and 1")
	}

	for i, s := range c.Remote.Sites {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("remote.sites[%d].id is required", i))
		}
		if _, ok := codec.ParseProtocol(s.Protocol); !ok {
			errs = append(errs, fmt.Sprintf("remote.sites[%d].protocol %q is not supported", i, s.Protocol))
		}
	}

	ids := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("rules[%d].id is required", i))
			continue
		}
		if ids[r.ID] {
			errs = append(errs, fmt.Sprintf("rules[%d].id %q is duplicated", i, r.ID))
		}
		ids[r.ID] = true
	}

	for i, l := range c.Loops {
		if l.ID == "" {
			errs = append(errs, fmt.Sprintf("loops[%d].id is required", i))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.AuditRetentionDays < 0 {
		errs = append(errs, "database.audit_retention_days cannot be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka.topic is required when kafka is enabled")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RuntimeConfig maps the file sections onto the network runtime settings.
func (c *Config) RuntimeConfig() network.Config {
	sites := make([]remote.Site, 0, len(c.Remote.Sites))
	for _, s := range c.Remote.Sites {
		sites = append(sites, remote.Site{
			ID:       s.ID,
			Name:     s.Name,
			Protocol: codec.Protocol(s.Protocol),
			Address:  s.Address,
		})
	}

	return network.Config{
		MaxNodes:               c.Network.MaxNodes,
		RateLimitMax:           c.Network.RateLimitMax,
		RateLimitWindow:        c.Network.RateLimitWindow,
		TickInterval:           c.Network.TickInterval,
		RuleTickInterval:       c.Network.RuleTickInterval,
		HealthInterval:         c.Network.HealthInterval,
		SweepInterval:          c.Network.SweepInterval,
		StaleThreshold:         c.Network.StaleThreshold,
		PermitSweep:            c.Safety.PermitSweepInterval,
		RuleEvaluationInterval: c.Network.RuleEvaluationInterval,
		HistorySize:            c.Network.HistorySize,
		MaxSignalDepth:         c.Network.MaxSignalDepth,
		DegradedThreshold:      c.Network.DegradedThreshold,
		MaxAlarms:              c.Network.MaxAlarms,
		DefaultEStop:           c.Safety.DefaultEmergencyStop,
		RemoteTimeout:          c.Remote.Timeout,
		RemoteTopic:            c.Remote.TopicPrefix,
		Rules:                  c.Rules,
		Loops:                  c.Loops,
		Interlocks:             c.Safety.Interlocks,
		EmergencyStops:         c.Safety.EmergencyStops,
		RemoteSites:            sites,
		NoDefaultSafety:        c.Safety.DisableDefaults,
	}
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
