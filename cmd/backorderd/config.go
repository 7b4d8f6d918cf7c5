package main

import (
	"context"

	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-config/config"
)

const (
	envPrefix         = "BACKORDER_"
	defaultConfigPath = "config/backorder.yaml"
)

// rawSource only collects the merged provider values; typing and validation
// happen when core.LoadConfig decodes them into core.Config.
type rawSource struct{}

func (rawSource) Validate() error { return nil }

// providerLoader layers a YAML file and BACKORDER_* variables. A double
// underscore separates sections, so BACKORDER_POLLER__INTERVAL=5m sets
// poller.interval. An explicit path must exist; the default path is optional.
type providerLoader struct {
	path string
}

func (l providerLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	file := config.FileProvider[rawSource](defaultConfigPath)
	file = config.OptionalProvider(file)
	if l.path != "" {
		file = config.FileProvider[rawSource](l.path)
	}
	container := config.New(rawSource{}).
		WithProvider(file, config.EnvProvider[rawSource](envPrefix, "__"))
	if err := container.Load(ctx); err != nil {
		return nil, err
	}
	values := container.K.Raw()
	// CLI flags share the prefix but are not config keys.
	for _, key := range []string{"config", "log_level", "log_format"} {
		delete(values, key)
	}
	return values, nil
}

func loadConfig(ctx context.Context, path string) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(providerLoader{path: path})
	cfg, err := core.LoadConfig(ctx, core.Config{}, provider, core.GoOptionsResolver{})
	if err != nil {
		return core.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}
