// Package main provides the VitalWatch service CLI.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/vitalwatch/internal/alerting"
	"github.com/good-yellow-bee/vitalwatch/internal/broker"
	"github.com/good-yellow-bee/vitalwatch/internal/ingest"
	"github.com/good-yellow-bee/vitalwatch/internal/lifecycle"
	"github.com/good-yellow-bee/vitalwatch/internal/notifier"
	"github.com/good-yellow-bee/vitalwatch/internal/storage"
)

// Config represents the service configuration.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Database  DatabaseConfig        `yaml:"database"`
	Log       LogConfig             `yaml:"log"`
	Brokers   BrokersConfig         `yaml:"brokers"`
	Alerting  alerting.PolicyConfig `yaml:"alerting"`
	Lifecycle LifecycleConfig       `yaml:"lifecycle"`
	Ingest    IngestConfig          `yaml:"ingest"`
	Notify    NotifyConfig          `yaml:"notify"`
	Verbose   bool                  `yaml:"-"` // set via CLI flag
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	Address         string        `yaml:"address"`           // HTTP API listen address (default: :8080)
	MetricsAddress  string        `yaml:"metrics_address"`   // Prometheus listen address, empty disables
	RequestTimeout  time.Duration `yaml:"request_timeout"`   // per-request deadline (default: 10s)
	IngestRateLimit int           `yaml:"ingest_rate_limit"` // POST /vitals per minute per client, 0 disables
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres (default: sqlite)
	DSN    string `yaml:"dsn"`    // postgres connection string
	Path   string `yaml:"path"`   // sqlite file (default: ./data/vitalwatch.db)
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // json or console (default: json)
}

// BrokersConfig holds the shared broker connections. A broker is only
// dialled when a source or notifier that needs it is enabled.
type BrokersConfig struct {
	Redis broker.RedisConfig `yaml:"redis"`
	MQTT  broker.MQTTConfig  `yaml:"mqtt"`
}

// LifecycleConfig controls alert announcement and retention.
type LifecycleConfig struct {
	AlertTTL       time.Duration `yaml:"alert_ttl"`
	SampleTTL      time.Duration `yaml:"sample_ttl"`
	ExpirySchedule string        `yaml:"expiry_schedule"` // cron spec (default: @every 1h)
}

// IngestConfig configures the worker pool and the streaming sources.
type IngestConfig struct {
	Workers   int               `yaml:"workers"`
	QueueSize int               `yaml:"queue_size"`
	Redis     RedisSourceConfig `yaml:"redis"`
	Kafka     KafkaSourceConfig `yaml:"kafka"`
	MQTT      MQTTSourceConfig  `yaml:"mqtt"`
	File      FileSourceConfig  `yaml:"file"`
}

// RedisSourceConfig enables the Redis Streams source.
type RedisSourceConfig struct {
	Enabled            bool `yaml:"enabled"`
	ingest.RedisConfig `yaml:",inline"`
}

// KafkaSourceConfig enables the Kafka source.
type KafkaSourceConfig struct {
	Enabled            bool `yaml:"enabled"`
	ingest.KafkaConfig `yaml:",inline"`
}

// MQTTSourceConfig enables the MQTT source.
type MQTTSourceConfig struct {
	Enabled           bool `yaml:"enabled"`
	ingest.MQTTConfig `yaml:",inline"`
}

// FileSourceConfig enables the JSON-lines file source.
type FileSourceConfig struct {
	Enabled           bool `yaml:"enabled"`
	ingest.FileConfig `yaml:",inline"`
}

// NotifyConfig configures alert delivery channels.
type NotifyConfig struct {
	Topic     string                    `yaml:"topic"`
	RateLimit *notifier.RateLimitConfig `yaml:"rate_limit"` // nil selects the default limit
	Log       LogChannelConfig          `yaml:"log"`
	Email     EmailChannelConfig        `yaml:"email"`
	Webhook   WebhookChannelConfig      `yaml:"webhook"`
	MQTT      MQTTChannelConfig         `yaml:"mqtt"`
}

// LogChannelConfig writes every notification to the service log.
type LogChannelConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EmailChannelConfig enables SMTP delivery.
type EmailChannelConfig struct {
	Enabled              bool `yaml:"enabled"`
	notifier.EmailConfig `yaml:",inline"`
}

// WebhookChannelConfig enables webhook delivery.
type WebhookChannelConfig struct {
	Enabled                bool `yaml:"enabled"`
	notifier.WebhookConfig `yaml:",inline"`
}

// MQTTChannelConfig enables MQTT delivery on brokers.mqtt.
type MQTTChannelConfig struct {
	Enabled             bool `yaml:"enabled"`
	notifier.MQTTConfig `yaml:",inline"`
}

// LoadConfig loads configuration from a YAML file. Environment variables
// override file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values and
// environment overrides applied. The alerting profile is left empty, so
// it must still be set before Validate passes.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.applyEnv(os.LookupEnv)
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = string(storage.DialectSQLite)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/vitalwatch.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Notify.Topic == "" {
		c.Notify.Topic = lifecycle.DefaultTopic
	}
	if c.Lifecycle.ExpirySchedule == "" {
		c.Lifecycle.ExpirySchedule = lifecycle.DefaultExpirySchedule
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = 256
	}
	if c.Notify.RateLimit == nil {
		rl := notifier.DefaultRateLimitConfig()
		c.Notify.RateLimit = &rl
	}
}

// applyEnv overrides file values with VITALWATCH_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup("VITALWATCH_" + key); ok && v != "" {
			*dst = v
		}
	}
	set("DB_DRIVER", &c.Database.Driver)
	set("DB_DSN", &c.Database.DSN)
	set("DB_PATH", &c.Database.Path)
	set("LOG_LEVEL", &c.Log.Level)
	set("LOG_FORMAT", &c.Log.Format)
	set("REDIS_ADDR", &c.Brokers.Redis.Addr)
	set("REDIS_PASSWORD", &c.Brokers.Redis.Password)
	set("MQTT_BROKER", &c.Brokers.MQTT.Broker)
	set("SMTP_PASSWORD", &c.Notify.Email.Password)
	set("ALERTING_PROFILE", &c.Alerting.Profile)

	var brokers string
	set("KAFKA_BROKERS", &brokers)
	if brokers != "" {
		c.Ingest.Kafka.Brokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Ingest.Kafka.Brokers = append(c.Ingest.Kafka.Brokers, b)
			}
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.MetricsAddress != "" && c.Server.MetricsAddress == c.Server.Address {
		return fmt.Errorf("server.metrics_address must differ from server.address")
	}
	if c.Server.IngestRateLimit < 0 {
		return fmt.Errorf("server.ingest_rate_limit must not be negative")
	}

	dialect, err := storage.ParseDialect(c.Database.Driver)
	if err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if dialect == storage.DialectPostgres && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}

	if _, err := c.Alerting.Resolve(); err != nil {
		return fmt.Errorf("alerting: %w", err)
	}

	if c.Ingest.Redis.Enabled && c.Brokers.Redis.Addr == "" {
		return fmt.Errorf("brokers.redis.addr is required when the redis source is enabled")
	}
	if c.Ingest.Kafka.Enabled {
		if err := c.Ingest.Kafka.Validate(); err != nil {
			return fmt.Errorf("ingest.kafka: %w", err)
		}
	}
	if (c.Ingest.MQTT.Enabled || c.Notify.MQTT.Enabled) && c.Brokers.MQTT.Broker == "" {
		return fmt.Errorf("brokers.mqtt.broker is required when mqtt is enabled")
	}
	if c.Ingest.File.Enabled && c.Ingest.File.Path == "" {
		return fmt.Errorf("ingest.file.path is required when the file source is enabled")
	}

	if c.Notify.Email.Enabled {
		if err := c.Notify.Email.Validate(); err != nil {
			return fmt.Errorf("notify.email: %w", err)
		}
	}
	if c.Notify.Webhook.Enabled {
		if err := c.Notify.Webhook.Validate(); err != nil {
			return fmt.Errorf("notify.webhook: %w", err)
		}
	}
	return nil
}

// needsMQTT reports whether any component uses the MQTT broker.
func (c *Config) needsMQTT() bool {
	return c.Ingest.MQTT.Enabled || c.Notify.MQTT.Enabled
}

// dsn returns the connection string for the configured driver.
func (c *Config) dsn() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return c.Database.Path
}
