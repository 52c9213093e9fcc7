package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for leadhub.
type Config struct {
	// HTTP admin API
	HTTPAddr        string        `json:"http_addr" yaml:"http_addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// AppBaseURL is the CRM front end used to build lead deep links.
	AppBaseURL string `json:"app_base_url" yaml:"app_base_url"`

	// Registry database. Driver is "postgres" or "sqlite".
	DatabaseDriver  string        `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN     string        `json:"database_dsn" yaml:"database_dsn"`
	DBMaxOpenConns  int           `json:"db_max_open_conns" yaml:"db_max_open_conns"`
	DBMaxIdleConns  int           `json:"db_max_idle_conns" yaml:"db_max_idle_conns"`
	DBConnMaxLife   time.Duration `json:"db_conn_max_lifetime" yaml:"db_conn_max_lifetime"`
	DeliveryHistory int           `json:"delivery_history" yaml:"delivery_history"`

	// Delivery log retention. Zero retention keeps rows forever.
	DeliveryRetention time.Duration `json:"delivery_retention" yaml:"delivery_retention"`
	PruneInterval     time.Duration `json:"prune_interval" yaml:"prune_interval"`

	// Providers
	NotificationTimeout time.Duration `json:"notification_timeout" yaml:"notification_timeout"`
	TelegramAPIBase     string        `json:"telegram_api_base" yaml:"telegram_api_base"`
	EmailAPIKey         string        `json:"email_api_key" yaml:"email_api_key"`
	EmailAPIBase        string        `json:"email_api_base" yaml:"email_api_base"`
	EmailFrom           string        `json:"email_from" yaml:"email_from"`

	// Webhooks
	WebhookTimeout time.Duration `json:"webhook_timeout" yaml:"webhook_timeout"`

	// Kafka event source (disabled when no brokers are set)
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic" yaml:"kafka_topic"`
	KafkaGroupID string   `json:"kafka_group_id" yaml:"kafka_group_id"`

	// Metrics
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`

	// InfluxDB (push)
	InfluxURL      string        `json:"influx_url" yaml:"influx_url"`
	InfluxToken    string        `json:"influx_token" yaml:"influx_token"`
	InfluxOrg      string        `json:"influx_org" yaml:"influx_org"`
	InfluxBucket   string        `json:"influx_bucket" yaml:"influx_bucket"`
	InfluxInterval time.Duration `json:"influx_interval" yaml:"influx_interval"`

	// Logging
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogFile    string `json:"log_file" yaml:"log_file"`
	LogConsole bool   `json:"log_console" yaml:"log_console"`
}

// DefaultConfig returns a sane default configuration
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 5 * time.Second,
		AppBaseURL:      "https://app.leadhub.io",

		DatabaseDriver:  "sqlite",
		DatabaseDSN:     "leadhub.db",
		DBMaxOpenConns:  10,
		DBMaxIdleConns:  5,
		DBConnMaxLife:   30 * time.Minute,
		DeliveryHistory: 50,

		DeliveryRetention: 30 * 24 * time.Hour,
		PruneInterval:     time.Hour,

		NotificationTimeout: 10 * time.Second,
		TelegramAPIBase:     "https://api.telegram.org",
		EmailAPIBase:        "https://api.resend.com",
		EmailFrom:           "Leadhub CRM <notifications@leadhub.io>",

		WebhookTimeout: 30 * time.Second,

		KafkaTopic:   "crm.lead-events",
		KafkaGroupID: "leadhub-notifications",

		// Metrics are served on the admin listener by default
		MetricsEnabled: true,
		InfluxInterval: 1 * time.Minute,

		LogLevel: "info",
	}
}

// KafkaEnabled reports whether the Kafka event source should run.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// Validate returns a list of non-fatal configuration warnings.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{strings.TrimSpace(c.EmailAPIKey) == "", "email API key is not set; email channels will fail"},
		{c.InfluxURL != "" && c.InfluxBucket == "", "influx URL provided but bucket is missing"},
		{len(c.KafkaBrokers) > 0 && c.KafkaTopic == "", "kafka brokers configured but topic is empty"},
		{c.NotificationTimeout <= 0, "notification timeout must be positive; using default"},
		{c.WebhookTimeout <= 0, "webhook timeout must be positive; using default"},
		{c.DeliveryRetention > 0 && c.PruneInterval <= 0, "delivery retention set but prune interval is not positive; pruning disabled"},
		{c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite", fmt.Sprintf("unknown database driver %q", c.DatabaseDriver)},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	if w := validateBaseURL(c.AppBaseURL); w != "" {
		warnings = append(warnings, w)
	}
	return warnings
}

// validateBaseURL returns a warning when the deep-link base is not an
// absolute http(s) URL.
func validateBaseURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Sprintf("invalid app_base_url %q (expected absolute http(s) URL)", raw)
	}
	return ""
}

// LoadConfigFromFile loads config from a YAML/JSON file on top of the
// defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
