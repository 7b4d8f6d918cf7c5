package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// Dependencies is the resolved set of collaborators a runtime is assembled
// from. Nil members are filled by the runtime with its defaults.
type Dependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	Now               func() time.Time
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	OrderStore        OrderStore
	Ledger            ProcessedLedger
	StatusProvider    StatusProvider
	OrderPlacer       OrderPlacer
	Registrar         Registrar
	Classifier        UnitClassifier
	NotificationSink  NotificationSink
	DistributedLocker DistributedLocker
	LocalLocker       LocalLocker
	Action            Action
}

type Option func(*Dependencies)

func WithLogger(logger Logger) Option {
	return func(d *Dependencies) {
		d.Logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(d *Dependencies) {
		d.LoggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(d *Dependencies) {
		d.MetricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(d *Dependencies) {
		d.ErrorMapper = mapper
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dependencies) {
		d.Now = now
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(d *Dependencies) {
		d.ConfigProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(d *Dependencies) {
		d.OptionsResolver = resolver
	}
}

func WithOrderStore(store OrderStore) Option {
	return func(d *Dependencies) {
		d.OrderStore = store
	}
}

func WithProcessedLedger(ledger ProcessedLedger) Option {
	return func(d *Dependencies) {
		d.Ledger = ledger
	}
}

func WithStatusProvider(provider StatusProvider) Option {
	return func(d *Dependencies) {
		d.StatusProvider = provider
	}
}

func WithOrderPlacer(placer OrderPlacer) Option {
	return func(d *Dependencies) {
		d.OrderPlacer = placer
	}
}

func WithRegistrar(registrar Registrar) Option {
	return func(d *Dependencies) {
		d.Registrar = registrar
	}
}

func WithUnitClassifier(classifier UnitClassifier) Option {
	return func(d *Dependencies) {
		d.Classifier = classifier
	}
}

func WithNotificationSink(sink NotificationSink) Option {
	return func(d *Dependencies) {
		d.NotificationSink = sink
	}
}

func WithDistributedLocker(locker DistributedLocker) Option {
	return func(d *Dependencies) {
		d.DistributedLocker = locker
	}
}

func WithLocalLocker(locker LocalLocker) Option {
	return func(d *Dependencies) {
		d.LocalLocker = locker
	}
}

func WithAction(action Action) Option {
	return func(d *Dependencies) {
		d.Action = action
	}
}

func ResolveDependencies(options ...Option) Dependencies {
	deps := Dependencies{
		MetricsRecorder: NopMetricsRecorder{},
		ErrorMapper:     MapError,
		Now:             func() time.Time { return time.Now().UTC() },
		ConfigProvider:  NewCfgxConfigProvider(nil),
		OptionsResolver: GoOptionsResolver{},
	}
	for _, option := range options {
		if option != nil {
			option(&deps)
		}
	}
	deps.LoggerProvider, deps.Logger = glog.Resolve("backorder", deps.LoggerProvider, deps.Logger)
	deps.Logger = glog.Ensure(deps.Logger)
	if deps.MetricsRecorder == nil {
		deps.MetricsRecorder = NopMetricsRecorder{}
	}
	if deps.ErrorMapper == nil {
		deps.ErrorMapper = MapError
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return deps
}

// ComponentLogger returns a named logger from the resolved provider.
func (d Dependencies) ComponentLogger(name string) Logger {
	_, logger := glog.Resolve(name, d.LoggerProvider, nil)
	return logger
}

// LoadConfig layers defaults, loaded values and runtime overrides.
func LoadConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, fmt.Errorf("core: config load failed: %w", err)
	}
	return resolver.Resolve(defaults, loaded, runtime)
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

type layerBuilder struct {
	includeZero bool
}

func (b layerBuilder) section(values map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range values {
		switch typed := value.(type) {
		case string:
			if !b.includeZero && strings.TrimSpace(typed) == "" {
				continue
			}
		case int:
			if !b.includeZero && typed == 0 {
				continue
			}
		case int64:
			if !b.includeZero && typed == 0 {
				continue
			}
		case bool:
			if !b.includeZero && !typed {
				continue
			}
		}
		out[key] = value
	}
	return out
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	b := layerBuilder{includeZero: includeZero}
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	sections := map[string]map[string]any{
		"poller": b.section(map[string]any{
			"interval":        cfg.Poller.Interval,
			"error_backoff":   cfg.Poller.ErrorBackoff,
			"notify_interval": cfg.Poller.NotifyInterval,
			"terminal_status": cfg.Poller.TerminalStatus,
		}),
		"breaker": b.section(map[string]any{
			"failure_threshold": cfg.Breaker.FailureThreshold,
			"recovery_timeout":  cfg.Breaker.RecoveryTimeout,
		}),
		"dispatcher": b.section(map[string]any{
			"local_wait": cfg.Dispatcher.LocalWait,
			"lock_ttl":   cfg.Dispatcher.LockTTL,
			"lock_wait":  cfg.Dispatcher.LockWait,
		}),
		"provider": b.section(map[string]any{
			"base_url":    cfg.Provider.BaseURL,
			"username":    cfg.Provider.Username,
			"password":    cfg.Provider.Password,
			"private_key": cfg.Provider.PrivateKey,
			"timeout":     cfg.Provider.Timeout,
		}),
		"registrar": b.section(map[string]any{
			"url":                 cfg.Registrar.URL,
			"username":            cfg.Registrar.Username,
			"password":            cfg.Registrar.Password,
			"timeout":             cfg.Registrar.Timeout,
			"user_email":          cfg.Registrar.UserEmail,
			"carrier_id":          cfg.Registrar.CarrierID,
			"skip_number_testing": cfg.Registrar.SkipNumberTesting,
		}),
		"notify": b.section(map[string]any{
			"url":     cfg.Notify.URL,
			"token":   cfg.Notify.Token,
			"timeout": cfg.Notify.Timeout,
		}),
		"persistence": b.section(map[string]any{
			"driver":           cfg.Persistence.Driver,
			"dsn":              cfg.Persistence.DSN,
			"debug":            cfg.Persistence.Debug,
			"ledger_cache_ttl": cfg.Persistence.LedgerCacheTTL,
		}),
		"http": b.section(map[string]any{
			"addr":           cfg.HTTP.Addr,
			"max_body_bytes": cfg.HTTP.MaxBodyBytes,
		}),
	}
	for name, section := range sections {
		if len(section) == 0 {
			continue
		}
		layer[name] = section
	}
	return layer
}
