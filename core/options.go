package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// ConfigProvider loads the effective service configuration on top of
// programmatic defaults.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// RawConfigLoader supplies an untyped configuration map, typically
// sourced from a file or the environment by the host application.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader wraps a literal map as a RawConfigLoader.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

// CfgxConfigProvider builds a validated Config from a raw map, filling
// unset keys from the supplied defaults.
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
		loader = staticRawConfigLoader{}
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

// ConfigResolver merges defaults, loaded configuration, and runtime
// overrides into one validated Config. Later layers win.
type ConfigResolver struct{}

func (ConfigResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
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

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	poller := map[string]any{}
	if includeZero || cfg.Poller.Concurrency != 0 {
		poller["concurrency"] = cfg.Poller.Concurrency
	}
	if includeZero || cfg.Poller.CallTimeout != 0 {
		poller["call_timeout"] = cfg.Poller.CallTimeout
	}
	if len(poller) > 0 {
		layer["poller"] = poller
	}

	queue := map[string]any{}
	if includeZero || cfg.Queue.Enabled {
		queue["enabled"] = cfg.Queue.Enabled
	}
	if includeZero || strings.TrimSpace(cfg.Queue.TaskName) != "" {
		queue["task_name"] = cfg.Queue.TaskName
	}
	if len(queue) > 0 {
		layer["queue"] = queue
	}

	trigger := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Trigger.Endpoint) != "" {
		trigger["endpoint"] = cfg.Trigger.Endpoint
	}
	if includeZero || strings.TrimSpace(cfg.Trigger.SharedSecret) != "" {
		trigger["shared_secret"] = cfg.Trigger.SharedSecret
	}
	if includeZero || strings.TrimSpace(cfg.Trigger.UserAgent) != "" {
		trigger["user_agent"] = cfg.Trigger.UserAgent
	}
	if includeZero || cfg.Trigger.Timeout != 0 {
		trigger["timeout"] = cfg.Trigger.Timeout
	}
	if len(trigger) > 0 {
		layer["trigger"] = trigger
	}

	idem := map[string]any{}
	if includeZero || cfg.Idempotency.TTL != 0 {
		idem["ttl"] = cfg.Idempotency.TTL
	}
	if includeZero || cfg.Idempotency.WaitInterval != 0 {
		idem["wait_interval"] = cfg.Idempotency.WaitInterval
	}
	if len(idem) > 0 {
		layer["idempotency"] = idem
	}

	return layer
}
