package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
// - LEADHUB_HTTP_ADDR (string, e.g. ":8080")
// - LEADHUB_APP_BASE_URL (string, e.g. "https://crm.example.com")
// - LEADHUB_DATABASE_DRIVER ("postgres" or "sqlite")
// - LEADHUB_DATABASE_DSN (string)
// - LEADHUB_DELIVERY_RETENTION, LEADHUB_PRUNE_INTERVAL (duration, "0" keeps history forever)
// - LEADHUB_NOTIFICATION_TIMEOUT, LEADHUB_WEBHOOK_TIMEOUT (duration, e.g. "10s")
// - LEADHUB_EMAIL_API_KEY, LEADHUB_EMAIL_API_BASE, LEADHUB_EMAIL_FROM
// - LEADHUB_TELEGRAM_API_BASE
// - LEADHUB_KAFKA_BROKERS (comma separated), LEADHUB_KAFKA_TOPIC, LEADHUB_KAFKA_GROUP_ID
// - LEADHUB_METRICS_ENABLED (bool)
// - LEADHUB_INFLUX_URL, LEADHUB_INFLUX_TOKEN, LEADHUB_INFLUX_ORG, LEADHUB_INFLUX_BUCKET
// - LEADHUB_INFLUX_INTERVAL (duration)
// - LEADHUB_LOG_LEVEL, LEADHUB_LOG_FILE, LEADHUB_LOG_CONSOLE
func ApplyEnvOverrides(cfg *Config) error {
	appliers := []func(*Config) error{
		applyServerEnv,
		applyDatabaseEnv,
		applyProviderEnv,
		applyKafkaEnv,
		applyMetricsEnv,
		applyInfluxEnv,
		applyLoggingEnv,
	}
	for _, apply := range appliers {
		if err := apply(cfg); err != nil {
			return err
		}
	}
	return nil
}

func applyServerEnv(cfg *Config) error {
	setStringEnv("LEADHUB_HTTP_ADDR", &cfg.HTTPAddr)
	setStringEnv("LEADHUB_APP_BASE_URL", &cfg.AppBaseURL)
	return setDurationEnv("LEADHUB_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
}

func applyDatabaseEnv(cfg *Config) error {
	setStringEnv("LEADHUB_DATABASE_DRIVER", &cfg.DatabaseDriver)
	setStringEnv("LEADHUB_DATABASE_DSN", &cfg.DatabaseDSN)
	if err := setIntEnv("LEADHUB_DB_MAX_OPEN_CONNS", &cfg.DBMaxOpenConns); err != nil {
		return err
	}
	if err := setIntEnv("LEADHUB_DB_MAX_IDLE_CONNS", &cfg.DBMaxIdleConns); err != nil {
		return err
	}
	if err := setIntEnv("LEADHUB_DELIVERY_HISTORY", &cfg.DeliveryHistory); err != nil {
		return err
	}
	if err := setDurationEnv("LEADHUB_DELIVERY_RETENTION", &cfg.DeliveryRetention); err != nil {
		return err
	}
	if err := setDurationEnv("LEADHUB_PRUNE_INTERVAL", &cfg.PruneInterval); err != nil {
		return err
	}
	return setDurationEnv("LEADHUB_DB_CONN_MAX_LIFETIME", &cfg.DBConnMaxLife)
}

func applyProviderEnv(cfg *Config) error {
	setStringEnv("LEADHUB_EMAIL_API_KEY", &cfg.EmailAPIKey)
	setStringEnv("LEADHUB_EMAIL_API_BASE", &cfg.EmailAPIBase)
	setStringEnv("LEADHUB_EMAIL_FROM", &cfg.EmailFrom)
	setStringEnv("LEADHUB_TELEGRAM_API_BASE", &cfg.TelegramAPIBase)
	if err := setDurationEnv("LEADHUB_NOTIFICATION_TIMEOUT", &cfg.NotificationTimeout); err != nil {
		return err
	}
	return setDurationEnv("LEADHUB_WEBHOOK_TIMEOUT", &cfg.WebhookTimeout)
}

func applyKafkaEnv(cfg *Config) error {
	if v := os.Getenv("LEADHUB_KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.KafkaBrokers = brokers
	}
	setStringEnv("LEADHUB_KAFKA_TOPIC", &cfg.KafkaTopic)
	setStringEnv("LEADHUB_KAFKA_GROUP_ID", &cfg.KafkaGroupID)
	return nil
}

func applyMetricsEnv(cfg *Config) error {
	return setBoolEnv("LEADHUB_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b })
}

func applyInfluxEnv(cfg *Config) error {
	setStringEnv("LEADHUB_INFLUX_URL", &cfg.InfluxURL)
	setStringEnv("LEADHUB_INFLUX_TOKEN", &cfg.InfluxToken)
	setStringEnv("LEADHUB_INFLUX_ORG", &cfg.InfluxOrg)
	setStringEnv("LEADHUB_INFLUX_BUCKET", &cfg.InfluxBucket)
	return setDurationEnv("LEADHUB_INFLUX_INTERVAL", &cfg.InfluxInterval)
}

func applyLoggingEnv(cfg *Config) error {
	setStringEnv("LEADHUB_LOG_LEVEL", &cfg.LogLevel)
	setStringEnv("LEADHUB_LOG_FILE", &cfg.LogFile)
	return setBoolEnv("LEADHUB_LOG_CONSOLE", func(b bool) { cfg.LogConsole = b })
}

func setStringEnv(env string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setDurationEnv(env string, dst *time.Duration) error {
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*dst = d
	}
	return nil
}

func setIntEnv(env string, dst *int) error {
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*dst = n
	}
	return nil
}

func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}
