package core

import (
	"context"
	"testing"
	"time"
)

func TestCfgxConfigProvider_LoadsNestedSections(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"database": map[string]any{
			"driver": "sqlite3",
			"dsn":    "file:test.db",
		},
		"orchestrator": map[string]any{
			"max_retry_limit":    3,
			"base_delay_seconds": 10,
		},
		"worker": map[string]any{
			"webhook_signing_key": "secret",
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.DSN != "file:test.db" {
		t.Fatalf("unexpected database config: %#v", cfg.Database)
	}
	if cfg.Orchestrator.MaxRetryLimit != 3 || cfg.Orchestrator.BaseDelaySeconds != 10 {
		t.Fatalf("unexpected orchestrator config: %#v", cfg.Orchestrator)
	}
	if cfg.Worker.LeaseDurationSeconds != 60 {
		t.Fatalf("expected default lease duration to survive, got %d", cfg.Worker.LeaseDurationSeconds)
	}
	if cfg.Worker.WebhookSigningKey != "secret" {
		t.Fatalf("expected signing key from loaded values")
	}
}

func TestGoOptionsResolver_RuntimeOverridesLoaded(t *testing.T) {
	defaults := DefaultConfig()
	loaded := DefaultConfig()
	loaded.Router.BatchSize = 25
	loaded.Worker.BatchSize = 4

	runtime := Config{}
	runtime.Worker.BatchSize = 8

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Router.BatchSize != 25 {
		t.Fatalf("expected loaded router batch size, got %d", resolved.Router.BatchSize)
	}
	if resolved.Worker.BatchSize != 8 {
		t.Fatalf("expected runtime worker batch size, got %d", resolved.Worker.BatchSize)
	}
	if resolved.LeaseCleaner.PollingIntervalSeconds != 30 {
		t.Fatalf("expected default cleaner interval, got %d", resolved.LeaseCleaner.PollingIntervalSeconds)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	cfg.Worker.BatchSize = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative batch size to fail validation")
	}

	cfg = DefaultConfig()
	cfg.Worker.HTTPTimeoutSeconds = 120
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected http timeout above lease duration to fail validation")
	}
}

func TestDatabaseConfigValidate_RequiresConnectionInfo(t *testing.T) {
	if err := (DatabaseConfig{Driver: DriverPostgres}).Validate(); err == nil {
		t.Fatalf("expected missing dsn to fail")
	}
	if err := (DatabaseConfig{Driver: "mysql", DSN: "x"}).Validate(); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
	if err := (DatabaseConfig{Driver: DriverPGX, DSN: "postgres://localhost/db"}).Validate(); err != nil {
		t.Fatalf("expected pgx config to validate: %v", err)
	}
}

func TestConfigDurations_FallBackOnZero(t *testing.T) {
	var cfg Config
	if got := cfg.Worker.LeaseDuration(); got != 60*time.Second {
		t.Fatalf("expected lease fallback 60s, got %s", got)
	}
	if got := cfg.LeaseCleaner.PollingInterval(); got != 30*time.Second {
		t.Fatalf("expected cleaner fallback 30s, got %s", got)
	}
	policy := cfg.Orchestrator.RetryPolicy()
	if policy.MaxRetries != 5 || policy.BaseDelay != 30*time.Second || policy.MaxDelay != time.Hour {
		t.Fatalf("unexpected retry policy fallback: %#v", policy)
	}
}
