package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"
)

type DatabaseConfig struct {
	Driver             string `koanf:"driver" mapstructure:"driver"`
	DSN                string `koanf:"dsn" mapstructure:"dsn"`
	Debug              bool   `koanf:"debug" mapstructure:"debug"`
	PingTimeoutSeconds int    `koanf:"ping_timeout_seconds" mapstructure:"ping_timeout_seconds"`
}

type RouterConfig struct {
	PollingIntervalSeconds      int `koanf:"polling_interval_seconds" mapstructure:"polling_interval_seconds"`
	BatchSize                   int `koanf:"batch_size" mapstructure:"batch_size"`
	SubscriptionCacheTTLSeconds int `koanf:"subscription_cache_ttl_seconds" mapstructure:"subscription_cache_ttl_seconds"`
	MaxEventFailures            int `koanf:"max_event_failures" mapstructure:"max_event_failures"`
}

type OrchestratorConfig struct {
	PollingIntervalSeconds int `koanf:"polling_interval_seconds" mapstructure:"polling_interval_seconds"`
	BatchSize              int `koanf:"batch_size" mapstructure:"batch_size"`
	MaxRetryLimit          int `koanf:"max_retry_limit" mapstructure:"max_retry_limit"`
	BaseDelaySeconds       int `koanf:"base_delay_seconds" mapstructure:"base_delay_seconds"`
	MaxDelaySeconds        int `koanf:"max_delay_seconds" mapstructure:"max_delay_seconds"`
}

type WorkerConfig struct {
	PollingIntervalSeconds int    `koanf:"polling_interval_seconds" mapstructure:"polling_interval_seconds"`
	BatchSize              int    `koanf:"batch_size" mapstructure:"batch_size"`
	LeaseDurationSeconds   int    `koanf:"lease_duration_seconds" mapstructure:"lease_duration_seconds"`
	HTTPTimeoutSeconds     int    `koanf:"http_timeout_seconds" mapstructure:"http_timeout_seconds"`
	Concurrency            int    `koanf:"concurrency" mapstructure:"concurrency"`
	WebhookSigningKey      string `koanf:"webhook_signing_key" mapstructure:"webhook_signing_key"`
	UserAgent              string `koanf:"user_agent" mapstructure:"user_agent"`
}

type LeaseCleanerConfig struct {
	PollingIntervalSeconds int `koanf:"polling_interval_seconds" mapstructure:"polling_interval_seconds"`
}

type DeadLetterConfig struct {
	DefaultListLimit int `koanf:"default_list_limit" mapstructure:"default_list_limit"`
	MaxListLimit     int `koanf:"max_list_limit" mapstructure:"max_list_limit"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	Database     DatabaseConfig     `koanf:"database" mapstructure:"database"`
	Router       RouterConfig       `koanf:"router" mapstructure:"router"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator" mapstructure:"orchestrator"`
	Worker       WorkerConfig       `koanf:"worker" mapstructure:"worker"`
	LeaseCleaner LeaseCleanerConfig `koanf:"lease_cleaner" mapstructure:"lease_cleaner"`
	DeadLetters  DeadLetterConfig   `koanf:"dead_letters" mapstructure:"dead_letters"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhooks",
		Database: DatabaseConfig{
			Driver:             DriverPostgres,
			PingTimeoutSeconds: 5,
		},
		Router: RouterConfig{
			PollingIntervalSeconds: 5,
			BatchSize:              100,
		},
		Orchestrator: OrchestratorConfig{
			PollingIntervalSeconds: 5,
			BatchSize:              100,
			MaxRetryLimit:          5,
			BaseDelaySeconds:       30,
			MaxDelaySeconds:        int(MaxRetryBackoff / time.Second),
		},
		Worker: WorkerConfig{
			PollingIntervalSeconds: 2,
			BatchSize:              10,
			LeaseDurationSeconds:   60,
			HTTPTimeoutSeconds:     30,
			Concurrency:            1,
			UserAgent:              "go-webhook-delivery",
		},
		LeaseCleaner: LeaseCleanerConfig{
			PollingIntervalSeconds: 30,
		},
		DeadLetters: DeadLetterConfig{
			DefaultListLimit: 50,
			MaxListLimit:     500,
		},
	}
}

// Validate checks the processing sections. Connection settings are checked
// separately by DatabaseConfig.Validate so embedded callers can bring their
// own persistence client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	checks := []struct {
		name  string
		value int
	}{
		{"router.polling_interval_seconds", c.Router.PollingIntervalSeconds},
		{"router.batch_size", c.Router.BatchSize},
		{"router.subscription_cache_ttl_seconds", c.Router.SubscriptionCacheTTLSeconds},
		{"router.max_event_failures", c.Router.MaxEventFailures},
		{"orchestrator.polling_interval_seconds", c.Orchestrator.PollingIntervalSeconds},
		{"orchestrator.batch_size", c.Orchestrator.BatchSize},
		{"orchestrator.max_retry_limit", c.Orchestrator.MaxRetryLimit},
		{"orchestrator.base_delay_seconds", c.Orchestrator.BaseDelaySeconds},
		{"orchestrator.max_delay_seconds", c.Orchestrator.MaxDelaySeconds},
		{"worker.polling_interval_seconds", c.Worker.PollingIntervalSeconds},
		{"worker.batch_size", c.Worker.BatchSize},
		{"worker.lease_duration_seconds", c.Worker.LeaseDurationSeconds},
		{"worker.http_timeout_seconds", c.Worker.HTTPTimeoutSeconds},
		{"worker.concurrency", c.Worker.Concurrency},
		{"lease_cleaner.polling_interval_seconds", c.LeaseCleaner.PollingIntervalSeconds},
		{"dead_letters.default_list_limit", c.DeadLetters.DefaultListLimit},
		{"dead_letters.max_list_limit", c.DeadLetters.MaxListLimit},
	}
	for _, check := range checks {
		if check.value < 0 {
			return fmt.Errorf("core: %s must not be negative", check.name)
		}
	}
	if c.Worker.LeaseDurationSeconds > 0 && c.Worker.HTTPTimeoutSeconds > c.Worker.LeaseDurationSeconds {
		return fmt.Errorf("core: worker.http_timeout_seconds must not exceed worker.lease_duration_seconds")
	}
	return nil
}

func (c DatabaseConfig) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("core: database.dsn is required")
	}
	switch strings.TrimSpace(strings.ToLower(c.Driver)) {
	case DriverPostgres, DriverPGX, DriverSQLite:
		return nil
	default:
		return fmt.Errorf("core: database.driver %q is invalid", c.Driver)
	}
}

func (c DatabaseConfig) PingTimeout() time.Duration {
	return seconds(c.PingTimeoutSeconds, 5*time.Second)
}

func (c RouterConfig) PollingInterval() time.Duration {
	return seconds(c.PollingIntervalSeconds, 5*time.Second)
}

func (c RouterConfig) SubscriptionCacheTTL() time.Duration {
	return seconds(c.SubscriptionCacheTTLSeconds, 0)
}

func (c OrchestratorConfig) PollingInterval() time.Duration {
	return seconds(c.PollingIntervalSeconds, 5*time.Second)
}

func (c OrchestratorConfig) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.MaxRetryLimit,
		BaseDelay:  seconds(c.BaseDelaySeconds, 0),
		MaxDelay:   seconds(c.MaxDelaySeconds, 0),
	}.normalized()
}

func (c WorkerConfig) PollingInterval() time.Duration {
	return seconds(c.PollingIntervalSeconds, 2*time.Second)
}

func (c WorkerConfig) LeaseDuration() time.Duration {
	return seconds(c.LeaseDurationSeconds, 60*time.Second)
}

func (c WorkerConfig) HTTPTimeout() time.Duration {
	return seconds(c.HTTPTimeoutSeconds, 30*time.Second)
}

func (c LeaseCleanerConfig) PollingInterval() time.Duration {
	return seconds(c.PollingIntervalSeconds, 30*time.Second)
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}
