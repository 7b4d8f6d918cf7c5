package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
	err error
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, p.err
}

func TestResolveDependencies_Defaults(t *testing.T) {
	deps := ResolveDependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.MetricsRecorder == nil {
		t.Fatalf("expected default metrics recorder")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and resolver")
	}
	if deps.Now == nil || deps.Now().Location() != time.UTC {
		t.Fatalf("expected utc clock")
	}
}

func TestResolveDependencies_WithOverrides(t *testing.T) {
	logger := newRecordingLogger()
	metrics := &recordingMetrics{}
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sentinel := errors.New("sentinel")
	mapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}

	deps := ResolveDependencies(
		WithLogger(logger),
		WithMetricsRecorder(metrics),
		WithErrorMapper(mapper),
		WithClock(func() time.Time { return fixed }),
		WithLocalLocker(nil),
		nil,
	)

	deps.Logger.Info("hello")
	if entries := logger.snapshot(); len(entries) != 1 || entries[0].msg != "hello" {
		t.Fatalf("expected custom logger to receive entries, got %#v", entries)
	}
	if deps.MetricsRecorder != metrics {
		t.Fatalf("expected custom metrics recorder")
	}
	if !deps.Now().Equal(fixed) {
		t.Fatalf("expected custom clock")
	}
	if mapped := deps.ErrorMapper(errors.New("x")); mapped == nil || mapped.Message != "mapped" {
		t.Fatalf("expected custom mapper, got %v", mapped)
	}
}

func TestResolveDependencies_ProviderTakesPrecedence(t *testing.T) {
	direct := newRecordingLogger()
	fromProvider := newRecordingLogger()

	deps := ResolveDependencies(
		WithLogger(direct),
		WithLoggerProvider(stubLoggerProvider{logger: fromProvider}),
	)
	deps.ComponentLogger("poller").Info("tick")

	if len(fromProvider.snapshot()) != 1 {
		t.Fatalf("expected provider logger to be used for components")
	}
	if len(direct.snapshot()) != 0 {
		t.Fatalf("expected direct logger to be bypassed when provider is set")
	}
}

func TestLoadConfig_LayersDefaultsConfigAndRuntime(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"service_name": "from-config",
		"poller": map[string]any{
			"interval": "5m",
		},
		"provider": map[string]any{
			"base_url": "https://orders.example.com",
		},
	}})

	cfg, err := LoadConfig(context.Background(), Config{
		ServiceName: "from-runtime",
		Breaker:     BreakerConfig{FailureThreshold: 5},
	}, provider, GoOptionsResolver{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name, got %q", cfg.ServiceName)
	}
	if got := cfg.Poller.IntervalDuration(); got != 5*time.Minute {
		t.Fatalf("expected configured poll interval, got %s", got)
	}
	if got := cfg.Poller.NotifyIntervalDuration(); got != DefaultNotifyInterval {
		t.Fatalf("expected default notify interval, got %s", got)
	}
	if cfg.Provider.BaseURL != "https://orders.example.com" {
		t.Fatalf("expected provider base url from config, got %q", cfg.Provider.BaseURL)
	}
	if cfg.Breaker.Threshold() != 5 {
		t.Fatalf("expected runtime failure threshold, got %d", cfg.Breaker.Threshold())
	}
	if cfg.Breaker.RecoveryTimeoutDuration() != DefaultRecoveryTimeout {
		t.Fatalf("expected default recovery timeout, got %s", cfg.Breaker.RecoveryTimeoutDuration())
	}
}

func TestLoadConfig_PropagatesProviderErrors(t *testing.T) {
	sentinel := errors.New("boom")
	_, err := LoadConfig(context.Background(), Config{}, &fixedConfigProvider{err: sentinel}, nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.Poller.Interval = "soon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid duration error")
	}

	cfg = DefaultConfig()
	cfg.Persistence.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid driver error")
	}
}

func TestConfigDurationFallbacks(t *testing.T) {
	var cfg Config
	if cfg.Poller.IntervalDuration() != DefaultPollInterval {
		t.Fatalf("expected default poll interval")
	}
	if cfg.Poller.ErrorBackoffDuration() != DefaultErrorBackoff {
		t.Fatalf("expected default backoff")
	}
	if cfg.Poller.TerminalMarker() != DefaultTerminalStatus {
		t.Fatalf("expected default terminal marker")
	}
	if cfg.Dispatcher.LockTTLDuration() != DefaultLockTTL {
		t.Fatalf("expected default lock ttl")
	}
}
