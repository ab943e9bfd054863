package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig   `yaml:"device"`
	Poll            PollConfig     `yaml:"poll"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	API             APIConfig      `yaml:"api"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Influx          InfluxConfig   `yaml:"influx"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig contains NVX endpoint connection settings
type DeviceConfig struct {
	Host                 string   `yaml:"host"`
	Port                 int      `yaml:"port"`
	Login                string   `yaml:"login"`
	Password             string   `yaml:"password"`
	DeviceID             string   `yaml:"device_id"` // Used in sink topics and tags (default: host)
	TrustAllCertificates *bool    `yaml:"trust_all_certificates"`
	Timeout              Duration `yaml:"timeout"` // HTTP timeout per request
	RateLimitRPS         float64  `yaml:"rate_limit_rps"`

	PingMode     string   `yaml:"ping_mode"`     // icmp or tcp (default: icmp)
	PingAttempts int      `yaml:"ping_attempts"` // Attempts averaged per ping (default: 1)
	PingTimeout  Duration `yaml:"ping_timeout"`

	IncludeControls *bool `yaml:"include_controls"` // Emit control descriptors (default: true)
}

// InsecureSkipVerify reports whether certificate validation is disabled.
// NVX endpoints ship with self-signed certificates, so this defaults to true.
func (c *DeviceConfig) InsecureSkipVerify() bool {
	if c.TrustAllCertificates == nil {
		return true
	}
	return *c.TrustAllCertificates
}

// ControlsEnabled reports whether control descriptors are derived
func (c *DeviceConfig) ControlsEnabled() bool {
	if c.IncludeControls == nil {
		return true
	}
	return *c.IncludeControls
}

// ID returns the identifier used by sinks for this device
func (c *DeviceConfig) ID() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	return c.Host
}

// PollConfig contains poll scheduler settings
type PollConfig struct {
	Interval Duration `yaml:"interval"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// LedgerConfig contains control audit ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// RetentionDuration returns the ledger retention as a duration
func (c *LedgerConfig) RetentionDuration() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// APIConfig contains the host-facing HTTP server settings
type APIConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// IsEnabled returns whether the API server should run (default: true)
func (c *APIConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// MQTTConfig contains MQTT sink settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Controls    bool   `yaml:"controls"` // Accept control requests on <prefix>/<id>/control
}

// InfluxConfig contains InfluxDB sink settings
type InfluxConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     uint   `yaml:"batch_size"`
	FlushInterval uint   `yaml:"flush_interval"` // Seconds
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./nvxd.sqlite"
	}

	// Device defaults
	if cfg.Device.Port == 0 {
		cfg.Device.Port = 443
	}
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(10 * time.Second)
	}
	if cfg.Device.RateLimitRPS == 0 {
		cfg.Device.RateLimitRPS = 10.0
	}
	if cfg.Device.PingMode == "" {
		cfg.Device.PingMode = "icmp"
	}
	cfg.Device.PingMode = strings.ToLower(cfg.Device.PingMode)
	if cfg.Device.PingAttempts <= 0 {
		cfg.Device.PingAttempts = 1
	}
	if cfg.Device.PingTimeout == 0 {
		cfg.Device.PingTimeout = Duration(2 * time.Second)
	}

	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(30 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 9090
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "nvxd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "nvxd"
	}
	if cfg.MQTT.QoS > 2 {
		cfg.MQTT.QoS = 1
	}

	// Influx defaults
	if cfg.Influx.BatchSize == 0 {
		cfg.Influx.BatchSize = 100
	}
	if cfg.Influx.FlushInterval == 0 {
		cfg.Influx.FlushInterval = 10
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return defaultVal
	})
}
