package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded < runtime, where zero values in
// the upper layers do not override lower ones.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig reads raw values through provider and layers runtime overrides on
// top with resolver.
func LoadConfig(
	ctx context.Context,
	provider ConfigProvider,
	resolver OptionsResolver,
	runtime Config,
) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver, includeZero)
	putString(database, "dsn", cfg.Database.DSN, includeZero)
	if includeZero || cfg.Database.Debug {
		database["debug"] = cfg.Database.Debug
	}
	putInt(database, "ping_timeout_seconds", cfg.Database.PingTimeoutSeconds, includeZero)
	putSection(layer, "database", database)

	router := map[string]any{}
	putInt(router, "polling_interval_seconds", cfg.Router.PollingIntervalSeconds, includeZero)
	putInt(router, "batch_size", cfg.Router.BatchSize, includeZero)
	putInt(router, "subscription_cache_ttl_seconds", cfg.Router.SubscriptionCacheTTLSeconds, includeZero)
	putInt(router, "max_event_failures", cfg.Router.MaxEventFailures, includeZero)
	putSection(layer, "router", router)

	orchestrator := map[string]any{}
	putInt(orchestrator, "polling_interval_seconds", cfg.Orchestrator.PollingIntervalSeconds, includeZero)
	putInt(orchestrator, "batch_size", cfg.Orchestrator.BatchSize, includeZero)
	putInt(orchestrator, "max_retry_limit", cfg.Orchestrator.MaxRetryLimit, includeZero)
	putInt(orchestrator, "base_delay_seconds", cfg.Orchestrator.BaseDelaySeconds, includeZero)
	putInt(orchestrator, "max_delay_seconds", cfg.Orchestrator.MaxDelaySeconds, includeZero)
	putSection(layer, "orchestrator", orchestrator)

	worker := map[string]any{}
	putInt(worker, "polling_interval_seconds", cfg.Worker.PollingIntervalSeconds, includeZero)
	putInt(worker, "batch_size", cfg.Worker.BatchSize, includeZero)
	putInt(worker, "lease_duration_seconds", cfg.Worker.LeaseDurationSeconds, includeZero)
	putInt(worker, "http_timeout_seconds", cfg.Worker.HTTPTimeoutSeconds, includeZero)
	putInt(worker, "concurrency", cfg.Worker.Concurrency, includeZero)
	putString(worker, "webhook_signing_key", cfg.Worker.WebhookSigningKey, includeZero)
	putString(worker, "user_agent", cfg.Worker.UserAgent, includeZero)
	putSection(layer, "worker", worker)

	cleaner := map[string]any{}
	putInt(cleaner, "polling_interval_seconds", cfg.LeaseCleaner.PollingIntervalSeconds, includeZero)
	putSection(layer, "lease_cleaner", cleaner)

	deadLetters := map[string]any{}
	putInt(deadLetters, "default_list_limit", cfg.DeadLetters.DefaultListLimit, includeZero)
	putInt(deadLetters, "max_list_limit", cfg.DeadLetters.MaxListLimit, includeZero)
	putSection(layer, "dead_letters", deadLetters)

	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
