package core

import (
	"fmt"
	"strings"
	"time"
)

type PollerConfig struct {
	Interval       string `koanf:"interval" mapstructure:"interval"`
	ErrorBackoff   string `koanf:"error_backoff" mapstructure:"error_backoff"`
	NotifyInterval string `koanf:"notify_interval" mapstructure:"notify_interval"`
	TerminalStatus string `koanf:"terminal_status" mapstructure:"terminal_status"`
}

type BreakerConfig struct {
	FailureThreshold int    `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeout  string `koanf:"recovery_timeout" mapstructure:"recovery_timeout"`
}

type DispatcherConfig struct {
	LocalWait string `koanf:"local_wait" mapstructure:"local_wait"`
	LockTTL   string `koanf:"lock_ttl" mapstructure:"lock_ttl"`
	LockWait  string `koanf:"lock_wait" mapstructure:"lock_wait"`
}

type ProviderConfig struct {
	BaseURL    string `koanf:"base_url" mapstructure:"base_url"`
	Username   string `koanf:"username" mapstructure:"username"`
	Password   string `koanf:"password" mapstructure:"password"`
	PrivateKey string `koanf:"private_key" mapstructure:"private_key"`
	Timeout    string `koanf:"timeout" mapstructure:"timeout"`
}

type RegistrarConfig struct {
	URL               string `koanf:"url" mapstructure:"url"`
	Username          string `koanf:"username" mapstructure:"username"`
	Password          string `koanf:"password" mapstructure:"password"`
	Timeout           string `koanf:"timeout" mapstructure:"timeout"`
	UserEmail         string `koanf:"user_email" mapstructure:"user_email"`
	CarrierID         string `koanf:"carrier_id" mapstructure:"carrier_id"`
	SkipNumberTesting bool   `koanf:"skip_number_testing" mapstructure:"skip_number_testing"`
}

type NotifyConfig struct {
	URL     string `koanf:"url" mapstructure:"url"`
	Token   string `koanf:"token" mapstructure:"token"`
	Timeout string `koanf:"timeout" mapstructure:"timeout"`
}

type PersistenceConfig struct {
	Driver         string `koanf:"driver" mapstructure:"driver"`
	DSN            string `koanf:"dsn" mapstructure:"dsn"`
	Debug          bool   `koanf:"debug" mapstructure:"debug"`
	LedgerCacheTTL string `koanf:"ledger_cache_ttl" mapstructure:"ledger_cache_ttl"`
}

type HTTPConfig struct {
	Addr         string `koanf:"addr" mapstructure:"addr"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Poller      PollerConfig      `koanf:"poller" mapstructure:"poller"`
	Breaker     BreakerConfig     `koanf:"breaker" mapstructure:"breaker"`
	Dispatcher  DispatcherConfig  `koanf:"dispatcher" mapstructure:"dispatcher"`
	Provider    ProviderConfig    `koanf:"provider" mapstructure:"provider"`
	Registrar   RegistrarConfig   `koanf:"registrar" mapstructure:"registrar"`
	Notify      NotifyConfig      `koanf:"notify" mapstructure:"notify"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
	HTTP        HTTPConfig        `koanf:"http" mapstructure:"http"`
}

const (
	DefaultPollInterval     = 10 * time.Minute
	DefaultErrorBackoff     = time.Hour
	DefaultNotifyInterval   = 4 * time.Hour
	DefaultTerminalStatus   = "Closed"
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = time.Minute
	DefaultLocalLockWait    = time.Second
	DefaultLockTTL          = 30 * time.Second
	DefaultLockWait         = time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultCarrierID        = "95201903171584"
)

func DefaultConfig() Config {
	return Config{
		ServiceName: "backorder",
		Poller: PollerConfig{
			Interval:       DefaultPollInterval.String(),
			ErrorBackoff:   DefaultErrorBackoff.String(),
			NotifyInterval: DefaultNotifyInterval.String(),
			TerminalStatus: DefaultTerminalStatus,
		},
		Breaker: BreakerConfig{
			FailureThreshold: DefaultFailureThreshold,
			RecoveryTimeout:  DefaultRecoveryTimeout.String(),
		},
		Dispatcher: DispatcherConfig{
			LocalWait: DefaultLocalLockWait.String(),
			LockTTL:   DefaultLockTTL.String(),
			LockWait:  DefaultLockWait.String(),
		},
		Provider: ProviderConfig{
			Timeout: DefaultRequestTimeout.String(),
		},
		Registrar: RegistrarConfig{
			Timeout:           DefaultRequestTimeout.String(),
			UserEmail:         "admin@example.com",
			CarrierID:         DefaultCarrierID,
			SkipNumberTesting: true,
		},
		Notify: NotifyConfig{
			Timeout: (10 * time.Second).String(),
		},
		Persistence: PersistenceConfig{
			Driver:         "sqlite3",
			DSN:            "file:backorder.db?cache=shared&_foreign_keys=on",
			LedgerCacheTTL: (5 * time.Minute).String(),
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			MaxBodyBytes: 1 << 20,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	durations := map[string]string{
		"poller.interval":              c.Poller.Interval,
		"poller.error_backoff":         c.Poller.ErrorBackoff,
		"poller.notify_interval":       c.Poller.NotifyInterval,
		"breaker.recovery_timeout":     c.Breaker.RecoveryTimeout,
		"dispatcher.local_wait":        c.Dispatcher.LocalWait,
		"dispatcher.lock_ttl":          c.Dispatcher.LockTTL,
		"dispatcher.lock_wait":         c.Dispatcher.LockWait,
		"provider.timeout":             c.Provider.Timeout,
		"registrar.timeout":            c.Registrar.Timeout,
		"notify.timeout":               c.Notify.Timeout,
		"persistence.ledger_cache_ttl": c.Persistence.LedgerCacheTTL,
	}
	for key, value := range durations {
		if strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("core: %s is invalid: %w", key, err)
		}
		if parsed < 0 {
			return fmt.Errorf("core: %s must not be negative", key)
		}
	}
	if c.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("core: breaker.failure_threshold must not be negative")
	}
	switch strings.TrimSpace(c.Persistence.Driver) {
	case "", "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: persistence.driver %q is invalid", c.Persistence.Driver)
	}
	return nil
}

func (c PollerConfig) IntervalDuration() time.Duration {
	return parseDuration(c.Interval, DefaultPollInterval)
}

func (c PollerConfig) ErrorBackoffDuration() time.Duration {
	return parseDuration(c.ErrorBackoff, DefaultErrorBackoff)
}

func (c PollerConfig) NotifyIntervalDuration() time.Duration {
	return parseDuration(c.NotifyInterval, DefaultNotifyInterval)
}

func (c PollerConfig) TerminalMarker() string {
	if marker := strings.TrimSpace(c.TerminalStatus); marker != "" {
		return marker
	}
	return DefaultTerminalStatus
}

func (c BreakerConfig) Threshold() int {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.FailureThreshold
}

func (c BreakerConfig) RecoveryTimeoutDuration() time.Duration {
	return parseDuration(c.RecoveryTimeout, DefaultRecoveryTimeout)
}

func (c DispatcherConfig) LocalWaitDuration() time.Duration {
	return parseDuration(c.LocalWait, DefaultLocalLockWait)
}

func (c DispatcherConfig) LockTTLDuration() time.Duration {
	return parseDuration(c.LockTTL, DefaultLockTTL)
}

func (c DispatcherConfig) LockWaitDuration() time.Duration {
	return parseDuration(c.LockWait, DefaultLockWait)
}

func (c ProviderConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, DefaultRequestTimeout)
}

func (c RegistrarConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, DefaultRequestTimeout)
}

func (c NotifyConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func (c PersistenceConfig) LedgerCacheTTLDuration() time.Duration {
	return parseDuration(c.LedgerCacheTTL, 5*time.Minute)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
