package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-config/koanf/providers/env"
	goerrors "github.com/goliatone/go-errors"
)

const envPrefix = "WEBHOOKS_"

var configSections = []string{
	"database",
	"router",
	"orchestrator",
	"worker",
	"lease_cleaner",
	"dead_letters",
}

// envLoader reads WEBHOOKS_* variables through the go-config env provider,
// e.g. WEBHOOKS_DATABASE_DSN becomes database.dsn and
// WEBHOOKS_LEASE_CLEANER_POLLING_INTERVAL_SECONDS becomes
// lease_cleaner.polling_interval_seconds. Values stay strings; cfgx decodes
// them into the typed config fields.
type envLoader struct{}

func (envLoader) LoadRaw(context.Context) (map[string]any, error) {
	provider := env.Provider(envPrefix, ".", envKey)
	// The default provider logger echoes every variable, secrets included.
	provider.SetLogger(quietLogger{})
	payload, err := provider.ReadBytes()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "read environment config")
	}
	raw := map[string]any{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "decode environment config")
	}
	return raw, nil
}

// envKey maps a variable name to a dotted config path. Unknown names map to
// a top-level key; an empty result drops the variable.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	if key == "" {
		return ""
	}
	for _, section := range configSections {
		if field, ok := strings.CutPrefix(key, section+"_"); ok && field != "" {
			return section + "." + field
		}
	}
	return key
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}
